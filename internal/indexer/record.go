package indexer

import (
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"dataunion/internal/ledger"
	"dataunion/internal/model"
	"dataunion/internal/storage"
)

func buildLogRecord(chainID uint64, log types.Log, timestamp uint64, ingestedAt time.Time) model.LogRecord {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}

	return model.LogRecord{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		TxIndex:     uint64(log.TxIndex),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(log.Data),
		Removed:     log.Removed,
		Timestamp:   timestamp,
		IngestedAt:  ingestedAt.UTC().Format(time.RFC3339Nano),
	}
}

// RejectRecorder writes events rejected by the ledger to sink.
func RejectRecorder(sink storage.ErrorSink, logger *zap.Logger) ledger.RejectHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ev model.Event, err error) {
		if sink == nil {
			return
		}
		meta := ev.Meta()
		record := model.Failure{
			Stage:       model.FailureApply,
			BlockNumber: meta.Key.BlockNumber,
			TxHash:      meta.TxHash.Hex(),
			TxIndex:     meta.Key.TxIndex,
			LogIndex:    meta.Key.LogIndex,
			Address:     meta.Union.Hex(),
			EventType:   string(ev.Type()),
			Error:       err.Error(),
		}
		if err := sink.PutErrors([]model.Failure{record}); err != nil {
			logger.Warn("write rejected event failed", zap.Error(err))
		}
	}
}
