package api

// Preferences is the opaque per-user settings bag.
type Preferences map[string]any

type User struct {
	ID          string      `json:"id"`
	Username    string      `json:"username"`
	Email       string      `json:"email"`
	Avatar      string      `json:"avatar,omitempty"`
	Preferences Preferences `json:"preferences,omitempty"`
	CreatedAt   string      `json:"created_at,omitempty"`
}

// Clone returns a deep-enough copy: the preferences map is copied one level.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	if u.Preferences != nil {
		out.Preferences = make(Preferences, len(u.Preferences))
		for k, v := range u.Preferences {
			out.Preferences[k] = v
		}
	}
	return &out
}

type AuthResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// ProfileUpdate is a partial user; nil fields are left unchanged server-side.
type ProfileUpdate struct {
	Username    *string     `json:"username,omitempty"`
	Email       *string     `json:"email,omitempty"`
	Preferences Preferences `json:"preferences,omitempty"`
}

type ChatMessage struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

type ChatHistorySession struct {
	SessionID   string        `json:"sessionId"`
	SessionName string        `json:"sessionName"`
	Messages    []ChatMessage `json:"messages"`
	CreatedAt   string        `json:"createdAt,omitempty"`
	UpdatedAt   string        `json:"updatedAt,omitempty"`
}

type Activity struct {
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type Template struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Thumbnail   string   `json:"thumbnail,omitempty"`
	Downloads   int      `json:"downloads"`
	Rating      float64  `json:"rating"`
	SlidesCount int      `json:"slides_count"`
	FileSize    string   `json:"file_size,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty"`
}

type TemplateQuery struct {
	Category string
	Search   string
	SortBy   string
	Limit    int
}

type TemplateList struct {
	Templates  []Template `json:"templates"`
	Total      int        `json:"total"`
	Categories []string   `json:"categories"`
}

type TemplateDownload struct {
	Message     string `json:"message"`
	TemplateID  string `json:"template_id"`
	DownloadURL string `json:"download_url"`
}

type DashboardStats struct {
	TotalPresentations int    `json:"total_presentations"`
	TotalConversions   int    `json:"total_conversions"`
	TotalAIGenerations int    `json:"total_ai_generations"`
	TotalChatSessions  int    `json:"total_chat_sessions"`
	TemplatesUsed      int    `json:"templates_used"`
	LastActivity       string `json:"last_activity,omitempty"`
}

// AnalyticsSection names one of the analytics endpoints.
type AnalyticsSection string

const (
	AnalyticsOverview    AnalyticsSection = "overview"
	AnalyticsPerformance AnalyticsSection = "performance"
	AnalyticsUsage       AnalyticsSection = "usage"
)

type Feedback struct {
	Type    string `json:"type"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
	Rating  int    `json:"rating"`
}

type Contact struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}
