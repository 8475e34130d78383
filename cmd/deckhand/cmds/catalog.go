package cmds

import (
	"context"
	"strings"

	"github.com/go-go-golems/deckhand/pkg/api"
	"github.com/go-go-golems/deckhand/pkg/app"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/pkg/errors"
)

func templateRow(t api.Template) types.Row {
	return types.NewRow(
		types.MRP("id", t.ID),
		types.MRP("name", t.Name),
		types.MRP("category", t.Category),
		types.MRP("downloads", t.Downloads),
		types.MRP("rating", t.Rating),
		types.MRP("slides", t.SlidesCount),
		types.MRP("size", t.FileSize),
		types.MRP("tags", strings.Join(t.Tags, ",")),
	)
}

func addTemplates(ctx context.Context, gp middlewares.Processor, list *api.TemplateList) error {
	for _, t := range list.Templates {
		if err := gp.AddRow(ctx, templateRow(t)); err != nil {
			return err
		}
	}
	return nil
}

type TemplatesListSettings struct {
	Category string `glazed:"category"`
	Search   string `glazed:"search"`
	OrderBy  string `glazed:"order-by"`
	Limit    int    `glazed:"limit"`
}

func NewTemplatesListCommand() (*GlazeCommand, error) {
	return newGlazeCommand("list",
		func(ctx context.Context, a *app.App, parsed *values.Values, gp middlewares.Processor) error {
			s, err := decode[TemplatesListSettings](parsed)
			if err != nil {
				return err
			}
			list, err := a.API.Templates(ctx, api.TemplateQuery{
				Category: s.Category,
				Search:   s.Search,
				SortBy:   s.OrderBy,
				Limit:    s.Limit,
			})
			if err != nil {
				return err
			}
			return addTemplates(ctx, gp, list)
		},
		cmds.WithShort("Browse the template gallery"),
		cmds.WithFlags(
			fields.New("category", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Only this category")),
			fields.New("search", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Search name, description and tags")),
			// glazed already owns --sort-by for row output
			fields.New("order-by", fields.TypeChoice,
				fields.WithChoices("downloads", "rating", "created_at"),
				fields.WithDefault("downloads"),
				fields.WithHelp("Order templates by this field")),
			fields.New("limit", fields.TypeInteger, fields.WithDefault(0), fields.WithHelp("Maximum number of templates (0 = server default)")),
		),
	)
}

func NewTemplatesPopularCommand() (*GlazeCommand, error) {
	return newGlazeCommand("popular",
		func(ctx context.Context, a *app.App, _ *values.Values, gp middlewares.Processor) error {
			list, err := a.API.PopularTemplates(ctx)
			if err != nil {
				return err
			}
			return addTemplates(ctx, gp, list)
		},
		cmds.WithShort("Show the most downloaded templates"),
	)
}

type TemplateIDSettings struct {
	ID string `glazed:"id"`
}

func NewTemplatesDownloadCommand() (*GlazeCommand, error) {
	return newGlazeCommand("download",
		func(ctx context.Context, a *app.App, parsed *values.Values, gp middlewares.Processor) error {
			s, err := decode[TemplateIDSettings](parsed)
			if err != nil {
				return err
			}
			if strings.TrimSpace(s.ID) == "" {
				return errors.New("template id is required")
			}
			d, err := a.API.DownloadTemplate(ctx, s.ID)
			if err != nil {
				return err
			}
			return gp.AddRow(ctx, types.NewRow(
				types.MRP("template_id", d.TemplateID),
				types.MRP("download_url", d.DownloadURL),
				types.MRP("message", d.Message),
			))
		},
		cmds.WithShort("Record a template download and print its URL"),
		cmds.WithArguments(
			fields.New("id", fields.TypeString, fields.WithHelp("Template id")),
		),
	)
}

func NewDashboardStatsCommand() (*GlazeCommand, error) {
	return newGlazeCommand("stats",
		func(ctx context.Context, a *app.App, _ *values.Values, gp middlewares.Processor) error {
			if err := requireSignedIn(a); err != nil {
				return err
			}
			st, err := a.API.DashboardStats(ctx)
			if err != nil {
				return err
			}
			return gp.AddRow(ctx, types.NewRow(
				types.MRP("presentations", st.TotalPresentations),
				types.MRP("conversions", st.TotalConversions),
				types.MRP("ai_generations", st.TotalAIGenerations),
				types.MRP("chat_sessions", st.TotalChatSessions),
				types.MRP("templates_used", st.TemplatesUsed),
				types.MRP("last_activity", st.LastActivity),
			))
		},
		cmds.WithShort("Show usage totals for the signed-in user"),
	)
}

type AnalyticsSettings struct {
	Section string `glazed:"section"`
}

func NewAnalyticsCommand() (*GlazeCommand, error) {
	return newGlazeCommand("analytics",
		func(ctx context.Context, a *app.App, parsed *values.Values, gp middlewares.Processor) error {
			s, err := decode[AnalyticsSettings](parsed)
			if err != nil {
				return err
			}
			if err := requireSignedIn(a); err != nil {
				return err
			}
			docs := map[api.AnalyticsSection]map[string]any{}
			if s.Section == "all" {
				docs, err = a.Analytics(ctx)
			} else {
				section := api.AnalyticsSection(s.Section)
				docs[section], err = a.API.Analytics(ctx, section)
			}
			if err != nil {
				return err
			}
			for _, section := range []api.AnalyticsSection{api.AnalyticsOverview, api.AnalyticsPerformance, api.AnalyticsUsage} {
				doc, ok := docs[section]
				if !ok {
					continue
				}
				for _, k := range sortedKeys(doc) {
					row := types.NewRow(
						types.MRP("section", string(section)),
						types.MRP("metric", k),
						types.MRP("value", doc[k]),
					)
					if err := gp.AddRow(ctx, row); err != nil {
						return err
					}
				}
			}
			return nil
		},
		cmds.WithShort("Show analytics metrics"),
		cmds.WithFlags(
			fields.New("section", fields.TypeChoice,
				fields.WithChoices("all", string(api.AnalyticsOverview), string(api.AnalyticsPerformance), string(api.AnalyticsUsage)),
				fields.WithDefault("all"),
				fields.WithHelp("Analytics section")),
		),
	)
}

type FeedbackSettings struct {
	Type    string `glazed:"type"`
	Email   string `glazed:"email"`
	Subject string `glazed:"subject"`
	Message string `glazed:"message"`
	Rating  int    `glazed:"rating"`
}

func NewFeedbackCommand() (*GlazeCommand, error) {
	return newGlazeCommand("feedback",
		func(ctx context.Context, a *app.App, parsed *values.Values, gp middlewares.Processor) error {
			s, err := decode[FeedbackSettings](parsed)
			if err != nil {
				return err
			}
			if s.Rating < 0 || s.Rating > 5 {
				return errors.Errorf("rating must be between 0 and 5, got %d", s.Rating)
			}
			email := s.Email
			if email == "" {
				email = a.Auth.Identity()
			}
			message, err := valueOrPrompt(s.Message, "Message", "message", false)
			if err != nil {
				return err
			}
			reply, err := a.API.SendFeedback(ctx, api.Feedback{
				Type:    s.Type,
				Email:   email,
				Subject: s.Subject,
				Message: message,
				Rating:  s.Rating,
			})
			if err != nil {
				return err
			}
			return gp.AddRow(ctx, types.NewRow(types.MRP("message", reply)))
		},
		cmds.WithShort("Send feedback to the team"),
		cmds.WithFlags(
			fields.New("type", fields.TypeString, fields.WithDefault("feedback"), fields.WithHelp("Feedback type")),
			fields.New("email", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Reply address (default: signed-in email)")),
			fields.New("subject", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Subject")),
			fields.New("message", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Message (prompted when missing)")),
			fields.New("rating", fields.TypeInteger, fields.WithDefault(0), fields.WithHelp("Rating from 1 to 5, 0 for none")),
		),
	)
}

type ContactSettings struct {
	Name    string `glazed:"name"`
	Email   string `glazed:"email"`
	Subject string `glazed:"subject"`
	Message string `glazed:"message"`
}

func NewContactCommand() (*GlazeCommand, error) {
	return newGlazeCommand("contact",
		func(ctx context.Context, a *app.App, parsed *values.Values, gp middlewares.Processor) error {
			s, err := decode[ContactSettings](parsed)
			if err != nil {
				return err
			}
			c := api.Contact{Name: s.Name, Email: s.Email, Subject: s.Subject, Message: s.Message}
			if u := a.Auth.User(); u != nil {
				if c.Name == "" {
					c.Name = u.Username
				}
				if c.Email == "" {
					c.Email = u.Email
				}
			}
			if c.Email, err = valueOrPrompt(c.Email, "Email", "email", false); err != nil {
				return err
			}
			if c.Message, err = valueOrPrompt(c.Message, "Message", "message", false); err != nil {
				return err
			}
			reply, err := a.API.SendContact(ctx, c)
			if err != nil {
				return err
			}
			return gp.AddRow(ctx, types.NewRow(types.MRP("message", reply)))
		},
		cmds.WithShort("Send a message to support"),
		cmds.WithFlags(
			fields.New("name", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Your name (default: username)")),
			fields.New("email", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Reply address (default: signed-in email)")),
			fields.New("subject", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Subject")),
			fields.New("message", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Message (prompted when missing)")),
		),
	)
}

func NewHealthCommand() (*GlazeCommand, error) {
	return newGlazeCommand("health",
		func(ctx context.Context, a *app.App, _ *values.Values, gp middlewares.Processor) error {
			status, err := a.API.Health(ctx)
			if err != nil {
				return err
			}
			return gp.AddRow(ctx, types.NewRow(
				types.MRP("base_url", a.API.BaseURL()),
				types.MRP("status", status),
			))
		},
		cmds.WithShort("Check that the backend is reachable"),
	)
}
