package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_SignInSignOutNotifies(t *testing.T) {
	st := NewState()
	_, ok := st.Get()
	assert.False(t, ok)

	type change struct {
		user    string
		present bool
	}
	var changes []change
	remove := st.OnChange(func(s Session, present bool) {
		changes = append(changes, change{s.UserID, present})
	})

	sess := Session{ID: "sid-1", UserID: "mrivera", Role: "editor"}
	st.SignIn(sess)
	st.SignIn(sess) // unchanged, no event
	got, ok := st.Get()
	assert.True(t, ok)
	assert.Equal(t, sess, got)

	st.SignOut()
	remove()
	st.SignIn(sess)

	assert.Equal(t, []change{{"mrivera", true}, {"", false}}, changes)
}
