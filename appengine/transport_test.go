package appengine

import (
	"testing"

	"github.com/cardinal-app/magiclink"
	"github.com/stretchr/testify/assert"
)

var (
	_ magiclink.CodeStore = MemcacheStore{}
	_ magiclink.Transport = MailTransport{}
	_ magiclink.Transport = XMPPTransport{}
)

func TestMailMessage(t *testing.T) {
	mt := MailTransport{Sender: "noreply@app.appspotmail.com"}
	m := mt.Message("alice@example.com", "myapp://magic?code=tok", "123456")
	assert.Equal(t, "noreply@app.appspotmail.com", m.Sender)
	assert.Equal(t, []string{"alice@example.com"}, m.To)
	assert.Equal(t, "Your sign-in link", m.Subject)
	assert.Contains(t, m.Body, "myapp://magic?code=tok")
	assert.Contains(t, m.HTMLBody, "<b>123456</b>")
}

func TestXMPPMessage(t *testing.T) {
	xt := XMPPTransport{Sender: "bot@app.appspotchat.com"}
	m := xt.Message("alice@example.com", "myapp://magic?code=tok", "123456")
	assert.Equal(t, []string{"alice@example.com"}, m.To)
	assert.Contains(t, m.Body, "Or enter this code in the app: 123456")
}
