package messages

import "github.com/bytedance/sonic"

// Outbound command names
const (
	CommandLogon = "logon"
)

// LogonRequest is the first message sent on a new connection
type LogonRequest struct {
	Command   string   `json:"command"` // always "logon"
	Seq       int      `json:"seq"`
	AuthToken string   `json:"auth_token"`
	Username  string   `json:"username"`
	Password  string   `json:"password"`
	Channels  []string `json:"channels"`
}

// NewLogonRequest creates a logon command
func NewLogonRequest(seq int, token, username, password string, channels []string) *LogonRequest {
	if channels == nil {
		channels = []string{}
	}
	return &LogonRequest{
		Command:   CommandLogon,
		Seq:       seq,
		AuthToken: token,
		Username:  username,
		Password:  password,
		Channels:  channels,
	}
}

// Marshal encodes the request for a text frame
func (r *LogonRequest) Marshal() ([]byte, error) {
	return sonic.Marshal(r)
}
