package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/mmdatafocus/pos_backend/config"
	"bitbucket.org/mmdatafocus/pos_backend/models"
	"bitbucket.org/mmdatafocus/pos_backend/repository"
)

type fakePublisher struct {
	mu       sync.Mutex
	err      error
	messages []config.FiscalMessage
}

func (p *fakePublisher) Publish(ctx context.Context, msg config.FiscalMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.messages = append(p.messages, msg)
	return fmt.Sprintf("ps-%d", len(p.messages)), nil
}

type testClock struct {
	mu sync.Mutex
	at time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.at = c.at.Add(d)
	c.mu.Unlock()
}

func newTestDispatcher(f *fixture, publisher Publisher) (*OutboxDispatcher, *testClock) {
	clock := &testClock{at: time.Now().UTC()}
	d := NewOutboxDispatcher(f.store, publisher, quietLogger())
	d.now = clock.now
	return d, clock
}

func (f *fixture) outboxRecord(id int) *models.FiscalOutboxRecord {
	f.t.Helper()
	var record *models.FiscalOutboxRecord
	require.NoError(f.t, f.store.View(f.ctx, func(tx repository.Tx) error {
		var err error
		record, err = tx.GetOutboxRecord(f.ctx, id)
		return err
	}))
	return record
}

func TestOutboxBackoff(t *testing.T) {
	assert.Equal(t, 5*time.Second, outboxBackoff(5*time.Second, 1))
	assert.Equal(t, 10*time.Second, outboxBackoff(5*time.Second, 2))
	assert.Equal(t, 20*time.Second, outboxBackoff(5*time.Second, 3))
	assert.Equal(t, 10*time.Minute, outboxBackoff(5*time.Second, 30))
}

func TestDispatchOncePublishesPendingRecords(t *testing.T) {
	f := newFiscalFixture(t, &fakeAuthority{}, nil)
	sale := f.fiscalSale()
	recordId := f.outbox()[0].ID

	publisher := &fakePublisher{}
	d, _ := newTestDispatcher(f, publisher)

	assert.Equal(t, 1, d.DispatchOnce(f.ctx))
	require.Len(t, publisher.messages, 1)
	assert.Equal(t, sale.ID, publisher.messages[0].SaleId)
	assert.Equal(t, recordId, publisher.messages[0].ID)

	record := f.outboxRecord(recordId)
	assert.Equal(t, models.OutboxPublishStatusSent, record.PublishStatus)
	require.NotNil(t, record.PubSubMessageId)
	assert.Equal(t, "ps-1", *record.PubSubMessageId)
	assert.Equal(t, 1, record.PublishAttempts)
	assert.Nil(t, record.LockedBy)

	assert.Zero(t, d.DispatchOnce(f.ctx), "sent records are not published again")
}

func TestDispatchOnceBacksOffFailures(t *testing.T) {
	f := newFiscalFixture(t, &fakeAuthority{}, nil)
	f.fiscalSale()
	recordId := f.outbox()[0].ID

	publisher := &fakePublisher{err: errors.New("topic not found")}
	d, clock := newTestDispatcher(f, publisher)

	assert.Zero(t, d.DispatchOnce(f.ctx))
	record := f.outboxRecord(recordId)
	assert.Equal(t, models.OutboxPublishStatusFailed, record.PublishStatus)
	require.NotNil(t, record.NextAttemptAt)
	assert.WithinDuration(t, clock.now().Add(d.InitialBackoff), *record.NextAttemptAt, time.Millisecond)
	require.NotNil(t, record.LastPublishError)
	assert.Equal(t, "topic not found", *record.LastPublishError)

	publisher.err = nil
	assert.Zero(t, d.DispatchOnce(f.ctx), "not due yet")

	clock.advance(d.InitialBackoff)
	assert.Equal(t, 1, d.DispatchOnce(f.ctx))
	record = f.outboxRecord(recordId)
	assert.Equal(t, models.OutboxPublishStatusSent, record.PublishStatus)
	assert.Equal(t, 2, record.PublishAttempts)
}

func TestDispatchOnceMovesPoisonRecordsToDead(t *testing.T) {
	f := newFiscalFixture(t, &fakeAuthority{}, nil)
	f.fiscalSale()
	recordId := f.outbox()[0].ID

	d, _ := newTestDispatcher(f, &fakePublisher{err: errors.New("boom")})
	d.MaxAttempts = 1

	assert.Zero(t, d.DispatchOnce(f.ctx))
	record := f.outboxRecord(recordId)
	assert.Equal(t, models.OutboxPublishStatusDead, record.PublishStatus)
	assert.Nil(t, record.NextAttemptAt)
}

func TestDispatchOnceReclaimsStaleLocks(t *testing.T) {
	f := newFiscalFixture(t, &fakeAuthority{}, nil)
	f.fiscalSale()
	recordId := f.outbox()[0].ID

	publisher := &fakePublisher{}
	d, clock := newTestDispatcher(f, publisher)

	require.NoError(t, f.store.Transaction(f.ctx, func(tx repository.Tx) error {
		record, err := tx.GetOutboxRecord(f.ctx, recordId)
		if err != nil {
			return err
		}
		lockedAt := clock.now().Add(-time.Minute)
		owner := "crashed-dispatcher"
		record.PublishStatus = models.OutboxPublishStatusProcessing
		record.LockedAt = &lockedAt
		record.LockedBy = &owner
		return tx.SaveOutboxRecord(f.ctx, record)
	}))

	assert.Equal(t, 1, d.DispatchOnce(f.ctx))
	assert.Equal(t, models.OutboxPublishStatusSent, f.outboxRecord(recordId).PublishStatus)
}

func TestDirectPublisherAuthorizesInProcess(t *testing.T) {
	authority := &fakeAuthority{}
	f := newFiscalFixture(t, authority, nil)
	sale := f.fiscalSale()

	d, _ := newTestDispatcher(f, DirectPublisher{Ledger: f.ledger})
	assert.Equal(t, 1, d.DispatchOnce(f.ctx))

	stored, err := f.ledger.GetSale(f.ctx, sale.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Cae)
	assert.Equal(t, 1, authority.calls())
}
