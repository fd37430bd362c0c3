package types

// RequestLogin is the credential payload for POST /auth/login.
type RequestLogin struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ResponseLogin carries the issued bearer token.
type ResponseLogin struct {
	Token string `json:"token"`
}

// RequestSendMessage is the send payload. The legacy PhoneNumber/Message
// pair is still accepted and treated as a text message.
type RequestSendMessage struct {
	To       string `json:"to"`
	Type     string `json:"type"`
	Content  string `json:"content"`
	MediaURL string `json:"mediaUrl"`
	FileName string `json:"fileName"`

	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
}

// RequestWebhook is the create/update payload for webhook subscriptions.
type RequestWebhook struct {
	URL    string   `json:"url"`
	Secret string   `json:"secret"`
	Events []string `json:"events"`
	Active *bool    `json:"active"`
}
