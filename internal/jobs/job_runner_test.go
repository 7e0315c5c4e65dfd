package jobs

import (
	"context"
	"errors"
	"testing"

	"toolshare-backend/internal/config"
	"toolshare-backend/internal/service"

	"github.com/stretchr/testify/assert"
)

type stubBorrows struct {
	service.BorrowLifecycle
	calls int
	err   error
}

func (s *stubBorrows) RemindOverdue(ctx context.Context) (int, error) {
	s.calls++
	if _, ok := ctx.Deadline(); !ok {
		panic("job context has no deadline")
	}
	return 2, s.err
}

type stubHandover struct {
	service.HandoverVerifier
	calls int
	err   error
	panic bool
}

func (s *stubHandover) PurgeExpired(context.Context) (int64, error) {
	s.calls++
	if s.panic {
		panic("boom")
	}
	return 3, s.err
}

func newRunner(b *stubBorrows, h *stubHandover) *JobRunner {
	return NewJobRunner(&Services{Borrows: b, Handover: h}, &config.Config{})
}

func TestJobRunner_Run(t *testing.T) {
	b, h := &stubBorrows{}, &stubHandover{}
	jr := newRunner(b, h)

	assert.NoError(t, jr.Run(JobPurgeHandoverCodes))
	assert.NoError(t, jr.Run(JobSendOverdueReminders))
	assert.Equal(t, 1, h.calls)
	assert.Equal(t, 1, b.calls)

	assert.NoError(t, jr.Run(JobAll))
	assert.Equal(t, 2, h.calls)
	assert.Equal(t, 2, b.calls)

	assert.Error(t, jr.Run("rebuild-index"))
}

func TestJobRunner_RunAllContinuesPastFailure(t *testing.T) {
	purgeErr := errors.New("db down")
	b, h := &stubBorrows{}, &stubHandover{err: purgeErr}
	jr := newRunner(b, h)

	err := jr.RunAll()
	assert.ErrorIs(t, err, purgeErr)
	assert.Equal(t, 1, b.calls)
}

func TestJobRunner_RecoversPanic(t *testing.T) {
	jr := newRunner(&stubBorrows{}, &stubHandover{panic: true})

	err := jr.PurgeExpiredHandoverCodes()
	assert.ErrorContains(t, err, "panicked")
}
