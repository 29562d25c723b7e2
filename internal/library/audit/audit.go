// Package audit は管理操作の追記専用ログ。
// 記録失敗は業務トランザクションを巻き戻さない（ログに残して握りつぶす）。
package audit

import (
	"context"
	"database/sql"
	"log"
	"time"
)

type Recorder struct {
	db *sql.DB
}

func NewRecorder(db *sql.DB) *Recorder { return &Recorder{db: db} }

// Record は admin の操作を1行追記する。ベストエフォート:
// 呼び出し元の業務処理がコミットされた後に呼ぶこと。エラーは返さない。
func (r *Recorder) Record(ctx context.Context, adminID int64, action string) {
	// 親リクエストのctxが既にキャンセル済みでも記録は試みる
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()

	const q = `INSERT INTO audit_log (admin_id, action, created_at) VALUES (?, ?, CURRENT_TIMESTAMP)`
	if _, err := r.db.ExecContext(ctx, q, adminID, action); err != nil {
		log.Printf("[WARN] audit: failed to record action (admin=%d action=%q): %v", adminID, action, err)
	}
}
