package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIngestedSubject(t *testing.T) {
	assert.Equal(t, "mailbox.alice@example_com.email.ingested", IngestedSubject("alice@example.com"))
	assert.Equal(t, "mailbox.team.email.ingested", IngestedSubject("team"))
}
