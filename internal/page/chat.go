package page

import (
	"bytes"
	"context"
	"html/template"
)

// DefaultChatMountID is the element id the chat client attaches to.
const DefaultChatMountID = "chat-root"

var chatTmpl = template.Must(template.New("chat").Parse(
	`<div id="{{.MountID}}" class="chat-mount"></div>` +
		`{{if .ScriptURL}}<script src="{{.ScriptURL}}" defer></script>{{end}}`))

// StaticChat renders a mount point for an externally served chat client.
type StaticChat struct {
	MountID   string
	ScriptURL string
}

// NewStaticChat creates a StaticChat, defaulting the mount id.
func NewStaticChat(mountID, scriptURL string) *StaticChat {
	if mountID == "" {
		mountID = DefaultChatMountID
	}
	return &StaticChat{MountID: mountID, ScriptURL: scriptURL}
}

// Render implements core.ChatSurface.
func (c *StaticChat) Render(_ context.Context) (template.HTML, error) {
	var buf bytes.Buffer
	if err := chatTmpl.Execute(&buf, c); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
