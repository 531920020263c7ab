package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"
)

type senderContext struct {
	tele.Context
	user *tele.User
}

func (s senderContext) Sender() *tele.User { return s.user }

func TestAdminOnlyMiddleware(t *testing.T) {
	cases := []struct {
		name    string
		adminID int64
		user    *tele.User
		allowed bool
	}{
		{"admin", 42, &tele.User{ID: 42}, true},
		{"stranger", 42, &tele.User{ID: 7}, false},
		{"no admin configured", 0, &tele.User{ID: 42}, false},
		{"no sender", 42, nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var ran, rejected bool
			h := AdminOnlyMiddleware(AdminOptions{
				AdminID:  tc.adminID,
				OnReject: func(tele.Context) error { rejected = true; return nil },
			})(func(tele.Context) error { ran = true; return nil })

			assert.NoError(t, h(senderContext{user: tc.user}))
			assert.Equal(t, tc.allowed, ran)
			assert.Equal(t, !tc.allowed, rejected)
		})
	}
}
