package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/aide/model"
)

func TestSessionMessagesWindow(t *testing.T) {
	sess := &session{}
	for i := 0; i < 5; i++ {
		sess.append(newEntry(model.RoleUser, string(rune('a'+i)), nil))
	}

	msgs := sess.messages(3)
	assert.Len(t, msgs, 3)
	assert.Equal(t, "c", msgs[0].Content)
	assert.Equal(t, "e", msgs[2].Content)

	// A zero window returns everything.
	assert.Len(t, sess.messages(0), 5)
	assert.Len(t, sess.messages(100), 5)
}

func TestSessionContentChars(t *testing.T) {
	sess := &session{}
	sess.append(newEntry(model.RoleUser, "hello", nil))
	sess.append(newEntry(model.RoleAssistant, "world!", nil))

	assert.Equal(t, 11, sess.contentChars())
}

func TestCharRatioEstimator(t *testing.T) {
	assert.Equal(t, 25, CharRatioEstimator{}.Estimate(100))
	assert.Equal(t, 50, CharRatioEstimator{CharsPerToken: 2}.Estimate(100))
	assert.Equal(t, 25, CharRatioEstimator{CharsPerToken: -1}.Estimate(100))
}
