package consume

import "sync"

// Token is a one-shot cancellation signal that can be checked any number of
// times. The zero value is not usable; call NewToken.
type Token struct {
	once sync.Once
	done chan struct{}
}

func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel signals the token. Only the first call has an effect; it reports
// whether this call was the one that signalled.
func (t *Token) Cancel() bool {
	fired := false
	t.once.Do(func() {
		close(t.done)
		fired = true
	})
	return fired
}

func (t *Token) Done() <-chan struct{} { return t.done }

func (t *Token) Cancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
