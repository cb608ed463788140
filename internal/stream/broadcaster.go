// Package stream は提案履歴のライブ配信基盤を提供する。
// PostgreSQLのLISTEN/NOTIFYを受けてユーザー単位の変更通知をファンアウトする。
package stream

import (
	"sync"
)

// Broadcaster はユーザー単位の変更通知をプロセス内の購読者へファンアウトする。
// 購読者ごとに容量1の通知チャネルを持ち、配信が追いつかない場合は
// 通知を合流させる（スナップショット配信のため回数は重要でない）。
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[string]map[int]chan struct{} // userID -> subID -> 通知チャネル
	nextID int
	closed bool
}

// NewBroadcaster はBroadcasterを生成する。
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[string]map[int]chan struct{}),
	}
}

// Subscribe は指定ユーザーの変更通知チャネルを返す。
// 返されたcancelは何度呼んでも安全で、2回目以降は何もしない。
// cancel後にチャネルはクローズされ、以降の通知は配信されない。
func (b *Broadcaster) Subscribe(userID string) (<-chan struct{}, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan struct{}, 1)

	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++

	if b.subs[userID] == nil {
		b.subs[userID] = make(map[int]chan struct{})
	}
	b.subs[userID][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if chans, ok := b.subs[userID]; ok {
				if c, ok := chans[id]; ok {
					delete(chans, id)
					close(c)
				}
				if len(chans) == 0 {
					delete(b.subs, userID)
				}
			}
		})
	}

	return ch, cancel
}

// Notify は指定ユーザーの全購読者に変更を通知する。
// チャネルが満杯の購読者への送信はスキップする（通知は合流する）。
func (b *Broadcaster) Notify(userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for _, ch := range b.subs[userID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// NotifyAll は全ユーザーの全購読者に変更を通知する。
// DB再接続後など、取りこぼしの可能性がある場合の再読込促進に使う。
func (b *Broadcaster) NotifyAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for _, chans := range b.subs {
		for _, ch := range chans {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}

// Close は全購読チャネルをクローズし、以降の購読と通知を無効化する。
// 何度呼んでも安全。
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for userID, chans := range b.subs {
		for id, ch := range chans {
			close(ch)
			delete(chans, id)
		}
		delete(b.subs, userID)
	}
}
