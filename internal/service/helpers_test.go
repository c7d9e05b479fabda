package service_test

import (
	"sync"
	"testing"
	"time"

	"socialchat/internal/db/dbtest"
	"socialchat/internal/mocks"
	"socialchat/internal/models"
	"socialchat/internal/service"

	"github.com/golang/mock/gomock"
	"gorm.io/gorm"
)

// stepClock 每读取一次前进一秒，保证每次写入的时间戳严格递增。
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func (c *stepClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

type fixture struct {
	db       *gorm.DB
	clock    *stepClock
	dispatch *mocks.MockDispatcher
	users    *service.UserService
	alice    models.User
	bob      models.User
	carol    models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb := dbtest.Open(t)
	ctrl := gomock.NewController(t)
	return &fixture{
		db:       gdb,
		clock:    newStepClock(),
		dispatch: mocks.NewMockDispatcher(ctrl),
		users:    service.NewUserService(gdb, nil, nil),
		alice:    dbtest.SeedUser(t, gdb, "alice"),
		bob:      dbtest.SeedUser(t, gdb, "bob"),
		carol:    dbtest.SeedUser(t, gdb, "carol"),
	}
}

func (f *fixture) conversations() *service.ConversationService {
	return service.NewConversationService(f.db, f.users, f.dispatch, service.WithClock(f.clock.Now))
}

func (f *fixture) presence() *service.PresenceService {
	return service.NewPresenceService(f.db, f.users, f.dispatch, service.WithClock(f.clock.Now))
}

func (f *fixture) notifications() *service.NotificationService {
	return service.NewNotificationService(f.db, f.users, f.dispatch, service.WithClock(f.clock.Now))
}
