package httpgin

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/huynhbt/raffle-go/internal/domain"
	redisrepo "github.com/huynhbt/raffle-go/internal/repository/redis"
)

const (
	sessionCookie = "raffle_sid"
	sessionKey    = "reservation_session"
)

// SessionMiddleware gives every visitor an anonymous session cookie and loads
// the matching reservation session for the request. Handlers that mutate the
// session persist it explicitly via saveSession.
func SessionMiddleware(sessions *redisrepo.SessionStore, cookieMaxAge int) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid, err := c.Cookie(sessionCookie)
		if err != nil || sid == "" {
			sid = uuid.NewString()
			c.SetCookie(sessionCookie, sid, cookieMaxAge, "/", "", false, true)
		}

		sess, err := sessions.Get(c.Request.Context(), sid)
		if err != nil {
			// A broken session backend must not take the read paths down;
			// fall back to an empty session for this request.
			sess = &domain.ReservationSession{ID: sid}
		}

		c.Set(sessionKey, sess)
		c.Next()
	}
}

func sessionFrom(c *gin.Context) *domain.ReservationSession {
	if v, ok := c.Get(sessionKey); ok {
		if sess, ok := v.(*domain.ReservationSession); ok {
			return sess
		}
	}
	return &domain.ReservationSession{ID: uuid.NewString()}
}

func saveSession(c *gin.Context, sessions *redisrepo.SessionStore, sess *domain.ReservationSession) {
	_ = sessions.Save(c.Request.Context(), sess)
}
