package ingestion

import (
	"GusdLedger/internal/op"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GRPCIngestService provides admin/manual operation injection via gRPC.
// The gRPC surface is for admin actions and manual injection, not for
// high-throughput ingestion (use NATS for that).
type GRPCIngestService struct {
	opChan chan<- op.Op
}

func NewGRPCIngestService(opChan chan<- op.Op) *GRPCIngestService {
	return &GRPCIngestService{opChan: opChan}
}

func (s *GRPCIngestService) send(ctx context.Context, o op.Op) error {
	if err := o.Validate(); err != nil {
		return err
	}
	select {
	case s.opChan <- o:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectPriceUpdate manually injects an UpdatePrice operation.
func (s *GRPCIngestService) InjectPriceUpdate(
	ctx context.Context,
	caller uuid.UUID,
	newPrice uint64,
	priceSequence int64,
) error {
	if newPrice == 0 {
		return fmt.Errorf("price must be positive")
	}

	return s.send(ctx, &op.UpdatePrice{
		Base: op.Base{
			OpID:        uuid.New(),
			CallerID:    caller,
			Sequence:    priceSequence,
			TimestampUs: time.Now().UnixMicro(),
		},
		NewPrice: newPrice,
	})
}

// InjectPause manually injects a PauseProtocol operation.
func (s *GRPCIngestService) InjectPause(
	ctx context.Context,
	caller uuid.UUID,
	sequence int64,
) error {
	return s.send(ctx, &op.PauseProtocol{
		Base: op.Base{
			OpID:        uuid.New(),
			CallerID:    caller,
			Sequence:    sequence,
			TimestampUs: time.Now().UnixMicro(),
		},
	})
}

// InjectUnpause manually injects an UnpauseProtocol operation.
func (s *GRPCIngestService) InjectUnpause(
	ctx context.Context,
	caller uuid.UUID,
	sequence int64,
) error {
	return s.send(ctx, &op.UnpauseProtocol{
		Base: op.Base{
			OpID:        uuid.New(),
			CallerID:    caller,
			Sequence:    sequence,
			TimestampUs: time.Now().UnixMicro(),
		},
	})
}

// InjectFundAccount manually injects a FundAccount operation on behalf of
// the deposits bridge.
func (s *GRPCIngestService) InjectFundAccount(
	ctx context.Context,
	caller uuid.UUID,
	asset string,
	amount uint64,
	sequence int64,
) error {
	if amount == 0 {
		return fmt.Errorf("amount must be positive")
	}

	return s.send(ctx, &op.FundAccount{
		Base: op.Base{
			OpID:        uuid.New(),
			CallerID:    caller,
			Sequence:    sequence,
			TimestampUs: time.Now().UnixMicro(),
		},
		Asset:  asset,
		Amount: amount,
	})
}

// InjectOp forwards an already-typed operation to the core. Used by the
// HTTP gateway after it has parsed the request body.
func (s *GRPCIngestService) InjectOp(ctx context.Context, o op.Op) error {
	return s.send(ctx, o)
}
