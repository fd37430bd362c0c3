package whatsapp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mau.fi/whatsmeow/types"
)

func TestDecomposeJID(t *testing.T) {
	assert.Equal(t, "5511999999999", DecomposeJID("5511999999999@s.whatsapp.net"))
	assert.Equal(t, "5511999999999", DecomposeJID("+5511999999999"))
	assert.Equal(t, "5511999999999", DecomposeJID(" 5511999999999 "))
	assert.Equal(t, "123456789-987654", DecomposeJID("123456789-987654@g.us"))
}

func TestComposeJIDUser(t *testing.T) {
	jid := ComposeJID("+5511999999999")
	assert.Equal(t, "5511999999999", jid.User)
	assert.Equal(t, types.DefaultUserServer, jid.Server)
}

func TestComposeJIDBareNumber(t *testing.T) {
	jid := ComposeJID("5511999999999")
	assert.Equal(t, "5511999999999", jid.User)
	assert.Equal(t, types.DefaultUserServer, jid.Server)
}

func TestComposeJIDQualifiedPassthrough(t *testing.T) {
	jid := ComposeJID("5511999999999@s.whatsapp.net")
	assert.Equal(t, "5511999999999", jid.User)
	assert.Equal(t, types.DefaultUserServer, jid.Server)

	group := ComposeJID("123456789-987654@g.us")
	assert.Equal(t, "123456789-987654", group.User)
	assert.Equal(t, types.GroupServer, group.Server)
}

func TestComposeJIDGroup(t *testing.T) {
	jid := ComposeJID("123456789-987654")
	assert.Equal(t, types.GroupServer, jid.Server)
}
