package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"minicrm/internal/cache"
	"minicrm/internal/domain"
	"minicrm/internal/observability"
	"minicrm/internal/segment"
	"minicrm/internal/store"
	"minicrm/internal/util"
)

type Store interface {
	CountAudience(ctx context.Context, whereSQL string, args []any) (int64, error)
	InsertSegment(ctx context.Context, name string, conditions []domain.Condition, now time.Time) (int64, error)
	GetSegment(ctx context.Context, segmentID int64) (store.SegmentRecord, bool, error)
	AssignToSegment(ctx context.Context, segmentID, customerID int64) error
	SegmentMembers(ctx context.Context, segmentID int64) ([]store.Customer, error)
	InsertDispatchBatch(ctx context.Context, in store.DispatchBatch) ([]int64, error)
	CampaignHistory(ctx context.Context, segmentID int64) ([]store.HistoryEntry, error)
	InsertLogEntry(ctx context.Context, in store.LogInsert) (int64, error)
}

type DeliveryChannel interface {
	Deliver(ctx context.Context, recipient string, body string) (domain.DeliveryStatus, error)
}

type PreviewCache interface {
	Get(ctx context.Context, key string) (int64, bool)
	Set(ctx context.Context, key string, size int64)
}

// CampaignService implements segment creation, audience previews, campaign
// dispatch and history. Limiter and Breaker wrap the delivery channel the way
// a real provider client would be wrapped; Cache is optional.
type CampaignService struct {
	Store   Store
	Channel DeliveryChannel
	Cache   PreviewCache
	Limiter *rate.Limiter
	Breaker *gobreaker.CircuitBreaker

	StoreTimeout time.Duration
	IDGen        func() string
}

// storeCtx bounds every store call; expiry surfaces as ErrStorageUnavailable
// in the pg layer.
func (s *CampaignService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.StoreTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (s *CampaignService) dispatchID() string {
	if s.IDGen != nil {
		return s.IDGen()
	}
	return util.NewDispatchID()
}

func (s *CampaignService) ComputeAudienceSize(ctx context.Context, conds []domain.Condition) (int64, error) {
	pred, err := segment.BuildPredicate(conds)
	if err != nil {
		return 0, err
	}

	var key string
	if s.Cache != nil {
		key = cache.Key(conds)
		if n, ok := s.Cache.Get(ctx, key); ok {
			observability.AudiencePreviews.WithLabelValues("cache").Inc()
			return n, nil
		}
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	n, err := s.Store.CountAudience(sctx, pred.SQL, pred.Args)
	if err != nil {
		return 0, err
	}
	observability.AudiencePreviews.WithLabelValues("store").Inc()

	if s.Cache != nil {
		s.Cache.Set(ctx, key, n)
	}
	return n, nil
}

func (s *CampaignService) CreateSegment(ctx context.Context, req domain.CreateSegmentRequest) (domain.CreateSegmentResponse, error) {
	// 1) validate before any write
	if err := req.Validate(); err != nil {
		return domain.CreateSegmentResponse{}, err
	}
	pred, err := segment.BuildPredicate(req.Conditions)
	if err != nil {
		return domain.CreateSegmentResponse{}, err
	}

	// 2) audience size for the response
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	size, err := s.Store.CountAudience(sctx, pred.SQL, pred.Args)
	if err != nil {
		return domain.CreateSegmentResponse{}, err
	}

	// 3) persist the definition verbatim
	id, err := s.Store.InsertSegment(sctx, req.Name, req.Conditions, util.NowUTC())
	if err != nil {
		return domain.CreateSegmentResponse{}, err
	}
	return domain.CreateSegmentResponse{SegmentID: id, AudienceSize: size}, nil
}

func (s *CampaignService) AssignMember(ctx context.Context, segmentID, customerID int64) error {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.Store.AssignToSegment(sctx, segmentID, customerID)
}

// Dispatch sends the templated message to every member of the segment and
// records a correlated log entry + delivery receipt pair per message.
// Dispatching to an existing segment with zero members is a no-op returning
// TotalMessages = 0; an unknown segment is ErrNotFound.
func (s *CampaignService) Dispatch(ctx context.Context, segmentID int64, req domain.DispatchRequest) (domain.DispatchResult, error) {
	if err := req.Validate(); err != nil {
		return domain.DispatchResult{}, err
	}

	// 1) resolve membership
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if _, found, err := s.Store.GetSegment(sctx, segmentID); err != nil {
		return domain.DispatchResult{}, err
	} else if !found {
		return domain.DispatchResult{}, fmt.Errorf("segment %d: %w", segmentID, domain.ErrNotFound)
	}
	members, err := s.Store.SegmentMembers(sctx, segmentID)
	if err != nil {
		return domain.DispatchResult{}, err
	}
	if len(members) == 0 {
		return domain.DispatchResult{TotalMessages: 0}, nil
	}

	// 2) render and collect channel outcomes before touching the log table
	dispatchID := s.dispatchID()
	msgs := make([]store.DispatchMessage, 0, len(members))
	for _, m := range members {
		body := util.RenderMessage(req.MessageTemplate, m.Name)
		status, err := s.deliver(ctx, m.Email, body)
		if err != nil {
			observability.Dispatches.WithLabelValues("channel_error").Inc()
			return domain.DispatchResult{}, err
		}
		observability.DeliveryOutcomes.WithLabelValues(string(status)).Inc()
		msgs = append(msgs, store.DispatchMessage{
			CustomerID:    m.ID,
			Message:       body,
			ReceiptStatus: status,
		})
	}

	// 3) atomic correlated write; log/receipt pairing uses the ids the store
	// actually assigned, so concurrent dispatches cannot cross wires
	bctx, bcancel := s.storeCtx(ctx)
	defer bcancel()
	logIDs, err := s.Store.InsertDispatchBatch(bctx, store.DispatchBatch{
		SegmentID:  segmentID,
		DispatchID: dispatchID,
		Messages:   msgs,
		Now:        util.NowUTC(),
	})
	if err != nil {
		observability.Dispatches.WithLabelValues("error").Inc()
		return domain.DispatchResult{}, err
	}
	if len(logIDs) != len(msgs) {
		observability.Dispatches.WithLabelValues("error").Inc()
		return domain.DispatchResult{}, fmt.Errorf("dispatch %s: %w", dispatchID, domain.ErrDispatchIntegrity)
	}

	observability.Dispatches.WithLabelValues("ok").Inc()
	observability.DispatchBatchSize.Observe(float64(len(msgs)))
	return domain.DispatchResult{DispatchID: dispatchID, TotalMessages: len(msgs)}, nil
}

func (s *CampaignService) deliver(ctx context.Context, recipient, body string) (domain.DeliveryStatus, error) {
	if s.Limiter != nil {
		waitCtx, cancelWait := context.WithTimeout(ctx, 2*time.Second)
		err := s.Limiter.Wait(waitCtx)
		cancelWait()
		if err != nil {
			return "", fmt.Errorf("delivery rate limit: %w", err)
		}
	}
	if s.Breaker == nil {
		return s.Channel.Deliver(ctx, recipient, body)
	}
	res, err := s.Breaker.Execute(func() (any, error) {
		return s.Channel.Deliver(ctx, recipient, body)
	})
	if err != nil {
		return "", err
	}
	return res.(domain.DeliveryStatus), nil
}

func (s *CampaignService) History(ctx context.Context, segmentID int64) ([]store.HistoryEntry, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if _, found, err := s.Store.GetSegment(sctx, segmentID); err != nil {
		return nil, err
	} else if !found {
		return nil, fmt.Errorf("segment %d: %w", segmentID, domain.ErrNotFound)
	}
	return s.Store.CampaignHistory(sctx, segmentID)
}

func (s *CampaignService) AddLogEntry(ctx context.Context, req domain.AddLogEntryRequest) (int64, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.Store.InsertLogEntry(sctx, store.LogInsert{
		SegmentID:  req.SegmentID,
		CustomerID: req.CustomerID,
		Message:    req.Message,
		Status:     req.Status,
	})
}
