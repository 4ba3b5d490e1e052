package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidHostname(t *testing.T) {
	valid := []string{
		"example.com",
		"sub.example.com",
		"my-host.example.org",
		"a.co",
		"db-1.internal.example.io",
	}
	for _, hostname := range valid {
		assert.True(t, ValidHostname(hostname), "expected %q to be valid", hostname)
	}

	invalid := []string{
		"",
		"localhost",
		"example",
		"example.c",
		"example.123",
		"-example.com",
		"example-.com",
		".example.com",
		"example..com",
		"exa mple.com",
		"example.com.",
		strings.Repeat("a", 64) + ".com",
	}
	for _, hostname := range invalid {
		assert.False(t, ValidHostname(hostname), "expected %q to be invalid", hostname)
	}
}

func TestValidIP(t *testing.T) {
	assert.True(t, ValidIP("127.0.0.1"))
	assert.True(t, ValidIP("10.0.0.254"))
	assert.True(t, ValidIP("::1"))
	assert.True(t, ValidIP("2001:db8::8a2e:370:7334"))

	assert.False(t, ValidIP(""))
	assert.False(t, ValidIP("256.1.1.1"))
	assert.False(t, ValidIP("10.0.0"))
	assert.False(t, ValidIP("example.com"))
}

func TestValidDBName(t *testing.T) {
	assert.True(t, ValidDBName("fix-database"))
	assert.True(t, ValidDBName("fix_db_01"))
	assert.True(t, ValidDBName("a"))
	assert.True(t, ValidDBName(strings.Repeat("a", 255)))

	assert.False(t, ValidDBName(""))
	assert.False(t, ValidDBName("fix database"))
	assert.False(t, ValidDBName("fix;drop"))
	assert.False(t, ValidDBName("fix.db"))
	assert.False(t, ValidDBName(strings.Repeat("a", 256)))
}
