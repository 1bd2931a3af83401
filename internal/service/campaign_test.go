package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"minicrm/internal/domain"
	"minicrm/internal/segment"
	"minicrm/internal/store"
)

type logRow struct {
	segmentID  int64
	customerID int64
	dispatchID string
	message    string
}

// fakeStore keeps everything in memory. Log ids are deliberately
// NON-contiguous (idStep > 1) to imitate other writers interleaving with a
// dispatch batch; correct correlation must survive that.
type fakeStore struct {
	mu        sync.Mutex
	customers []store.Customer
	segments  map[int64]store.SegmentRecord
	members   map[int64][]int64
	logs      map[int64]logRow
	receipts  map[int64]domain.DeliveryStatus
	nextSegID int64
	nextLogID int64
	idStep    int64

	history      map[int64][]store.HistoryEntry
	shortBatch   bool // return fewer ids than messages
	countConds   []domain.Condition
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		segments:  map[int64]store.SegmentRecord{},
		members:   map[int64][]int64{},
		logs:      map[int64]logRow{},
		receipts:  map[int64]domain.DeliveryStatus{},
		history:   map[int64][]store.HistoryEntry{},
		nextSegID: 1,
		nextLogID: 100,
		idStep:    7,
	}
}

func (f *fakeStore) CountAudience(ctx context.Context, whereSQL string, args []any) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, c := range f.customers {
		ok, err := segment.Matches(f.countConds, c)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) InsertSegment(ctx context.Context, name string, conds []domain.Condition, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSegID
	f.nextSegID++
	f.segments[id] = store.SegmentRecord{ID: id, Name: name, Conditions: conds, CreatedAt: now}
	return id, nil
}

func (f *fakeStore) GetSegment(ctx context.Context, id int64) (store.SegmentRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.segments[id]
	return rec, ok, nil
}

func (f *fakeStore) AssignToSegment(ctx context.Context, segmentID, customerID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[segmentID] = append(f.members[segmentID], customerID)
	return nil
}

func (f *fakeStore) SegmentMembers(ctx context.Context, segmentID int64) ([]store.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Customer{}
	for _, id := range f.members[segmentID] {
		for _, c := range f.customers {
			if c.ID == id {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) InsertDispatchBatch(ctx context.Context, in store.DispatchBatch) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, 0, len(in.Messages))
	for _, m := range in.Messages {
		id := f.nextLogID
		f.nextLogID += f.idStep
		f.logs[id] = logRow{segmentID: in.SegmentID, customerID: m.CustomerID, dispatchID: in.DispatchID, message: m.Message}
		f.receipts[id] = m.ReceiptStatus
		ids = append(ids, id)
	}
	if f.shortBatch && len(ids) > 0 {
		ids = ids[:len(ids)-1]
	}
	return ids, nil
}

func (f *fakeStore) CampaignHistory(ctx context.Context, segmentID int64) ([]store.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history[segmentID], nil
}

func (f *fakeStore) InsertLogEntry(ctx context.Context, in store.LogInsert) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextLogID
	f.nextLogID += f.idStep
	f.logs[id] = logRow{segmentID: in.SegmentID, customerID: in.CustomerID, message: in.Message}
	return id, nil
}

// scriptedChannel replays a fixed outcome sequence.
type scriptedChannel struct {
	mu   sync.Mutex
	seq  []domain.DeliveryStatus
	next int
}

func (c *scriptedChannel) Deliver(ctx context.Context, recipient, body string) (domain.DeliveryStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.seq[c.next%len(c.seq)]
	c.next++
	return st, nil
}

func testCustomer(id int64, name string, spending float64) store.Customer {
	return store.Customer{ID: id, Name: name, Email: name + "@example.com", TotalSpending: spending, LastVisitDate: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
}

func newService(f *fakeStore, ch DeliveryChannel) *CampaignService {
	return &CampaignService{Store: f, Channel: ch}
}

func TestCreateSegmentReturnsAudienceSize(t *testing.T) {
	f := newFakeStore()
	f.customers = []store.Customer{
		testCustomer(1, "Ada", 1500),
		testCustomer(2, "Bea", 400),
		testCustomer(3, "Cyd", 1000),
	}
	conds := []domain.Condition{{Field: "total_spending", Operator: ">=", Value: float64(1000)}}
	f.countConds = conds

	svc := newService(f, &scriptedChannel{seq: []domain.DeliveryStatus{domain.StatusSent}})
	resp, err := svc.CreateSegment(context.Background(), domain.CreateSegmentRequest{Name: "VIPs", Conditions: conds})
	require.NoError(t, err)
	require.Equal(t, int64(2), resp.AudienceSize)
	require.NotZero(t, resp.SegmentID)

	rec, found, _ := f.GetSegment(context.Background(), resp.SegmentID)
	require.True(t, found)
	require.Equal(t, conds, rec.Conditions, "conditions must persist verbatim")
}

func TestCreateSegmentValidation(t *testing.T) {
	svc := newService(newFakeStore(), nil)

	_, err := svc.CreateSegment(context.Background(), domain.CreateSegmentRequest{Name: "", Conditions: []domain.Condition{{Field: "name", Operator: "=", Value: "x"}}})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.CreateSegment(context.Background(), domain.CreateSegmentRequest{Name: "x", Conditions: nil})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.CreateSegment(context.Background(), domain.CreateSegmentRequest{
		Name:       "x",
		Conditions: []domain.Condition{{Field: "drop_tables", Operator: "=", Value: "x"}},
	})
	require.ErrorIs(t, err, domain.ErrInvalidCondition)
}

func TestComputeAudienceSizeRejectsMalformed(t *testing.T) {
	svc := newService(newFakeStore(), nil)

	_, err := svc.ComputeAudienceSize(context.Background(), nil)
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.ComputeAudienceSize(context.Background(), []domain.Condition{{Operator: "=", Value: "x"}})
	require.ErrorIs(t, err, domain.ErrInvalidCondition)
}

func seedSegment(f *fakeStore, segID int64, members ...store.Customer) {
	f.segments[segID] = store.SegmentRecord{ID: segID, Name: fmt.Sprintf("seg-%d", segID)}
	for _, c := range members {
		f.customers = append(f.customers, c)
		f.members[segID] = append(f.members[segID], c.ID)
	}
}

func TestDispatchCorrelatesLogsAndReceipts(t *testing.T) {
	f := newFakeStore()
	seedSegment(f, 1, testCustomer(1, "Ada", 1), testCustomer(2, "Bea", 2), testCustomer(3, "Cyd", 3))

	ch := &scriptedChannel{seq: []domain.DeliveryStatus{domain.StatusSent, domain.StatusFailed, domain.StatusSent}}
	svc := newService(f, ch)

	res, err := svc.Dispatch(context.Background(), 1, domain.DispatchRequest{MessageTemplate: "Hi [Name], 10% off!"})
	require.NoError(t, err)
	require.Equal(t, 3, res.TotalMessages)
	require.NotEmpty(t, res.DispatchID)

	require.Len(t, f.logs, 3)
	require.Len(t, f.receipts, 3)

	// every log row has exactly one receipt, keyed by the id the store
	// assigned; ids are non-contiguous here on purpose
	byCustomer := map[int64]domain.DeliveryStatus{}
	for id, row := range f.logs {
		st, ok := f.receipts[id]
		require.True(t, ok, "log %d has no receipt", id)
		require.Equal(t, res.DispatchID, row.dispatchID)
		byCustomer[row.customerID] = st
	}
	require.Equal(t, domain.StatusSent, byCustomer[1])
	require.Equal(t, domain.StatusFailed, byCustomer[2])
	require.Equal(t, domain.StatusSent, byCustomer[3])

	// rendering substitutes the single [Name] token
	for _, row := range f.logs {
		if row.customerID == 1 {
			require.Equal(t, "Hi Ada, 10% off!", row.message)
		}
	}
}

func TestDispatchUnknownSegment(t *testing.T) {
	svc := newService(newFakeStore(), &scriptedChannel{seq: []domain.DeliveryStatus{domain.StatusSent}})
	_, err := svc.Dispatch(context.Background(), 99, domain.DispatchRequest{MessageTemplate: "Hi [Name]"})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDispatchEmptySegmentIsNoop(t *testing.T) {
	f := newFakeStore()
	f.segments[5] = store.SegmentRecord{ID: 5, Name: "empty"}

	svc := newService(f, &scriptedChannel{seq: []domain.DeliveryStatus{domain.StatusSent}})
	res, err := svc.Dispatch(context.Background(), 5, domain.DispatchRequest{MessageTemplate: "Hi [Name]"})
	require.NoError(t, err)
	require.Equal(t, 0, res.TotalMessages)
	require.Empty(t, f.logs)
}

func TestDispatchEmptyTemplate(t *testing.T) {
	svc := newService(newFakeStore(), nil)
	_, err := svc.Dispatch(context.Background(), 1, domain.DispatchRequest{})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestDispatchIntegrityMismatch(t *testing.T) {
	f := newFakeStore()
	f.shortBatch = true
	seedSegment(f, 1, testCustomer(1, "Ada", 1), testCustomer(2, "Bea", 2))

	svc := newService(f, &scriptedChannel{seq: []domain.DeliveryStatus{domain.StatusSent}})
	_, err := svc.Dispatch(context.Background(), 1, domain.DispatchRequest{MessageTemplate: "Hi [Name]"})
	require.ErrorIs(t, err, domain.ErrDispatchIntegrity)
}

func TestConcurrentDispatchesDoNotCrossWires(t *testing.T) {
	f := newFakeStore()
	seedSegment(f, 1, testCustomer(1, "Ada", 1), testCustomer(2, "Bea", 2), testCustomer(3, "Cyd", 3))
	seedSegment(f, 2, testCustomer(4, "Dee", 4), testCustomer(5, "Eli", 5))

	svc := newService(f, &scriptedChannel{seq: []domain.DeliveryStatus{domain.StatusSent, domain.StatusFailed}})

	var wg sync.WaitGroup
	results := make([]domain.DispatchResult, 2)
	errs := make([]error, 2)
	for i, segID := range []int64{1, 2} {
		wg.Add(1)
		go func(i int, segID int64) {
			defer wg.Done()
			results[i], errs[i] = svc.Dispatch(context.Background(), segID, domain.DispatchRequest{MessageTemplate: "Hi [Name]"})
		}(i, segID)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Equal(t, 3, results[0].TotalMessages)
	require.Equal(t, 2, results[1].TotalMessages)
	require.NotEqual(t, results[0].DispatchID, results[1].DispatchID)

	require.Len(t, f.logs, 5)
	require.Len(t, f.receipts, 5)

	perSegment := map[int64]int{}
	for id, row := range f.logs {
		_, ok := f.receipts[id]
		require.True(t, ok, "log %d has no receipt", id)
		perSegment[row.segmentID]++
		// a log row's dispatch id must belong to its own segment's batch
		if row.segmentID == 1 {
			require.Equal(t, results[0].DispatchID, row.dispatchID)
		} else {
			require.Equal(t, results[1].DispatchID, row.dispatchID)
		}
	}
	require.Equal(t, 3, perSegment[1])
	require.Equal(t, 2, perSegment[2])
}

func TestHistoryPassThroughAndIdempotence(t *testing.T) {
	f := newFakeStore()
	f.segments[1] = store.SegmentRecord{ID: 1, Name: "s"}
	now := time.Now().UTC()
	f.history[1] = []store.HistoryEntry{
		{LogID: 12, Message: "Hi Bea", Status: "SENT", Timestamp: now, TotalMessages: 5, SentMessages: 4, FailedMessages: 1},
		{LogID: 11, Message: "Hi Ada", Status: "SENT", Timestamp: now.Add(-time.Hour), TotalMessages: 2, SentMessages: 2},
	}

	svc := newService(f, nil)
	first, err := svc.History(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, first[0].SentMessages+first[0].FailedMessages, first[0].TotalMessages)

	second, err := svc.History(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestHistoryUnknownSegment(t *testing.T) {
	svc := newService(newFakeStore(), nil)
	_, err := svc.History(context.Background(), 42)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAddLogEntryValidatesStatus(t *testing.T) {
	svc := newService(newFakeStore(), nil)
	_, err := svc.AddLogEntry(context.Background(), domain.AddLogEntryRequest{
		SegmentID: 1, CustomerID: 1, Message: "hi", Status: "DELIVERED",
	})
	require.ErrorIs(t, err, domain.ErrValidation)
}
