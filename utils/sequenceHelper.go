package utils

import (
	"context"
	"fmt"
	"sync"

	"bitbucket.org/mmdatafocus/estimator_backend/config"
)

var seqMutex sync.Mutex

// GetLineSequence allocates the next line sequence for a project. The counter
// lives in Redis and is seeded from max(line_sequence) in the db, so numbers
// stay monotonic and are not reused after line deletions. Callers must hold
// the project mutation lock.
func GetLineSequence[T any](ctx context.Context, projectId int) (int64, error) {
	var model T
	seqMutex.Lock()
	defer seqMutex.Unlock()

	cacheKey := fmt.Sprintf("project:%d-line_seq", projectId)
	var seqNo int64
	var err error
	db := config.GetDB()

	for {
		seqNo, err = config.GetRedisCounter(ctx, cacheKey)
		if err != nil {
			return 0, err
		}
		// if not found in redis, seed from db
		if seqNo <= 1 {
			var dbSeq *int64
			if err := db.WithContext(ctx).Model(&model).Select("max(line_sequence)").
				Where("project_id = ?", projectId).
				Scan(&dbSeq).Error; err != nil {
				return 0, StoreErr(err)
			}
			// in case the project has no lines yet
			if dbSeq == nil {
				seqNo = 0
			} else {
				seqNo = *dbSeq
			}
			seqNo++
			if err := config.SetRedisObject(cacheKey, &seqNo, 0); err != nil {
				return 0, err
			}
		}
		// guard against a stale counter
		count, err := ResourceCountWhere[T](ctx, "project_id = ? AND line_sequence = ?", projectId, seqNo)
		if err != nil {
			return 0, err
		}
		if count == 0 {
			break
		}
	}
	return seqNo, nil
}
