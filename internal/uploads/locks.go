package uploads

import "sync"

// postLocks serializes append flows per post within this process.
type postLocks struct {
	mu    sync.Mutex
	posts map[int64]*postLock
}

type postLock struct {
	sync.Mutex
	refs int
}

func newPostLocks() *postLocks {
	return &postLocks{posts: make(map[int64]*postLock)}
}

// lock blocks until postID is free and returns the matching unlock.
func (l *postLocks) lock(postID int64) (unlock func()) {
	l.mu.Lock()
	pl, ok := l.posts[postID]
	if !ok {
		pl = &postLock{}
		l.posts[postID] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.Lock()
	return func() {
		pl.Unlock()

		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.posts, postID)
		}
		l.mu.Unlock()
	}
}
