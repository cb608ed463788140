package stream

import (
	"context"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// notifyChannel は履歴追記トリガーが通知するPostgreSQLチャネル名。
const notifyChannel = "queries_changed"

// Listener はPostgreSQLのLISTEN/NOTIFYを購読し、
// 通知ペイロード（ユーザーID）をBroadcasterへ転送する。
type Listener struct {
	pqListener  *pq.Listener
	broadcaster *Broadcaster
	logger      *slog.Logger
}

// NewListener はListenerを生成する。
// databaseURLはPostgreSQLの接続URLを指定する。
func NewListener(databaseURL string, broadcaster *Broadcaster, logger *slog.Logger) *Listener {
	pqListener := pq.NewListener(
		databaseURL,
		10*time.Second, // minReconnectInterval
		time.Minute,    // maxReconnectInterval
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				logger.Error("postgres listener event",
					slog.Int("event", int(ev)),
					slog.String("error", err.Error()),
				)
			}
		},
	)

	return &Listener{
		pqListener:  pqListener,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Run はLISTENを開始し、通知をBroadcasterへ転送し続ける。
// コンテキストがキャンセルされるまでブロックする。
// 再接続はpq.Listenerが行うが、再接続直後は通知を取りこぼしている
// 可能性があるため、全購読ユーザーへ再読込を促す通知を送る。
func (l *Listener) Run(ctx context.Context) error {
	if err := l.pqListener.Listen(notifyChannel); err != nil {
		return err
	}
	defer l.pqListener.Close()

	l.logger.Info("query feed listener started",
		slog.String("channel", notifyChannel),
	)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("query feed listener stopped")
			return nil

		case n := <-l.pqListener.Notify:
			if n == nil {
				// 再接続が発生した。取りこぼしを補うため全員に再読込を促す。
				l.broadcaster.NotifyAll()
				continue
			}
			l.broadcaster.Notify(n.Extra)

		case <-time.After(90 * time.Second):
			// 長時間通知がない場合の死活確認
			go func() {
				if err := l.pqListener.Ping(); err != nil {
					l.logger.Error("listener ping failed",
						slog.String("error", err.Error()),
					)
				}
			}()
		}
	}
}
