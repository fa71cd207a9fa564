// Package buffer implements the midpoint-insertion LRU buffer pool
// that every page access in this engine goes through: a bounded cache
// split into a small "old" region new pages are admitted into and a
// larger "young" region a page reaches when touched again after the
// promotion age, when old overflows on admission, or (on a bloom-filter
// hit for a recently evicted page) directly on admission, generalizing
// the young/old split kept in the teacher's
// buffer package (which used a flat unpinned/allocated split instead).
package buffer

import (
	"container/list"
	"time"

	"github.com/AndreasBriese/bbloom"
	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"

	"github.com/latticedb/lattice/pkg/dberrors"
	"github.com/latticedb/lattice/pkg/storage"
	"github.com/latticedb/lattice/pkg/tuple"
)

// DefaultCapacity mirrors the teacher's DEFAULT_PAGES constant.
const DefaultCapacity = 50

const oldRegionFraction = 0.2

// promotionAge is how long a page must sit untouched in the old region
// before a second hit promotes it straight to the young region, rather
// than just moving it within old; this is what keeps a one-off
// sequential scan from flushing out the working set.
const promotionAge = 1000 * time.Millisecond

type frame struct {
	page storage.Page
	pid  string // tuple.PageID.String(), used as the map key
	// frameID is a debug-only identity tag, not used for lookups.
	frameID  string
	lastUsed time.Time
	inYoung  bool
}

// Pool is the bounded, shared page cache. One Pool belongs to one
// engine.Context and is safe for concurrent use.
type Pool struct {
	mu deadlock.Mutex

	capacity     int
	oldCap       int
	youngCap     int
	promotionAge time.Duration

	old   *list.List // of *frame, front = most-recently-touched
	young *list.List
	index map[string]*list.Element // pid -> element in old or young

	files map[uint64]storage.DBFile // tableID -> backing file, for reads/writes

	// evicted is a bloom filter of recently evicted PageIDs: a page
	// that shows up here again soon after eviction is a hint that the
	// workload is scan-dominated, biasing its re-admission toward the
	// young list instead of old. It is a hint only — a false positive
	// only changes which list a page lands in, never correctness.
	evicted bbloom.Bloom

	log *logrus.Entry
}

// New builds a Pool with the given capacity (in pages), using the
// default 20%-old-region split and 1s promotion age.
func New(capacity int) *Pool {
	return NewWithOptions(capacity, oldRegionFraction, promotionAge)
}

// NewWithOptions is New with the old-region fraction and promotion age
// overridable, for callers wiring these in from internal/config rather
// than accepting the built-in defaults.
func NewWithOptions(capacity int, oldFraction float64, promotion time.Duration) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	oldCap := int(float64(capacity) * oldFraction)
	if oldCap < 1 {
		oldCap = 1
	}
	youngCap := capacity - oldCap
	if youngCap < 1 {
		youngCap = 1
	}
	return &Pool{
		capacity:     capacity,
		oldCap:       oldCap,
		youngCap:     youngCap,
		promotionAge: promotion,
		old:          list.New(),
		young:        list.New(),
		index:        make(map[string]*list.Element),
		files:        make(map[uint64]storage.DBFile),
		evicted:      bbloom.New(float64(capacity*8), 0.01),
		log:          logrus.WithField("component", "buffer_pool"),
	}
}

// RegisterFile tells the pool which DBFile backs a given table, so
// GetPage knows where to fault a miss in from.
func (p *Pool) RegisterFile(tableID uint64, file storage.DBFile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files[tableID] = file
}

// GetPage returns the cached page for pid, reading it through the
// registered DBFile on a miss and admitting it into the pool. Callers
// are expected to already hold the appropriate lock via pkg/txn before
// calling GetPage with an EXCLUSIVE-intent read; the pool itself
// enforces no transactional semantics, only caching.
func (p *Pool) GetPage(pid tuple.PageID) (storage.Page, error) {
	key := pid.String()

	p.mu.Lock()
	if el, ok := p.index[key]; ok {
		pg := p.touch(el)
		p.mu.Unlock()
		return pg, nil
	}
	file, ok := p.files[pid.TableID()]
	p.mu.Unlock()

	if !ok {
		return nil, dberrors.NotFound
	}
	page, err := file.ReadPage(pid)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if el, ok := p.index[key]; ok {
		// Lost the race with another goroutine's fault-in.
		return p.touch(el), nil
	}
	if err := p.admit(page); err != nil {
		return nil, err
	}
	return page, nil
}

// touch applies the midpoint-insertion hit rule for an element already
// in the cache: a young hit moves to the young head; an old hit
// promotes to the young head if the page has aged past promotionAge
// and young has room, otherwise it just moves to the old head.
func (p *Pool) touch(el *list.Element) storage.Page {
	fr := el.Value.(*frame)
	now := time.Now()

	if fr.inYoung {
		fr.lastUsed = now
		p.young.MoveToFront(el)
		return fr.page
	}

	aged := now.Sub(fr.lastUsed) > p.promotionAge
	p.old.Remove(el)
	if aged && p.young.Len() < p.youngCap {
		fr.lastUsed = now
		fr.inYoung = true
		p.index[fr.pid] = p.young.PushFront(fr)
		return fr.page
	}
	fr.lastUsed = now
	p.index[fr.pid] = p.old.PushFront(fr)
	return fr.page
}

// admit inserts a newly faulted-in page. A page whose PageID was
// recently evicted (bloom hit) is assumed to belong to a hot working
// set that briefly lost a capacity race, and is admitted straight into
// young instead of old. Otherwise it lands in old, and if old is at
// capacity its oldest member is promoted into young to make room
// (mirroring the teacher's buffer pool miss path of displacing rather
// than simply refusing the new page).
func (p *Pool) admit(page storage.Page) error {
	key := page.ID().String()
	fr := &frame{page: page, pid: key, frameID: uuid.NewString(), lastUsed: time.Now()}

	hot := p.evicted.Has([]byte(key))

	if hot && p.young.Len() < p.youngCap {
		fr.inYoung = true
		p.index[key] = p.young.PushFront(fr)
		return nil
	}

	if p.old.Len() >= p.oldCap {
		if p.young.Len() < p.youngCap {
			p.promoteOldestOld()
		} else if err := p.evictOne(); err != nil {
			return err
		}
	}
	p.index[key] = p.old.PushFront(fr)
	return nil
}

// promoteOldestOld moves old's tail (its least-recently-touched page)
// into young's head, freeing a slot in old for the page being admitted.
func (p *Pool) promoteOldestOld() {
	back := p.old.Back()
	if back == nil {
		return
	}
	fr := back.Value.(*frame)
	p.old.Remove(back)
	fr.inYoung = true
	p.index[fr.pid] = p.young.PushFront(fr)
}

// demoteOldestYoung moves young's tail (its least-recently-touched
// page) to the head of old, without checking old's capacity.
func (p *Pool) demoteOldestYoung() {
	back := p.young.Back()
	if back == nil {
		return
	}
	fr := back.Value.(*frame)
	p.young.Remove(back)
	fr.inYoung = false
	p.index[fr.pid] = p.old.PushFront(fr)
}

// evictOne scans old tail-to-head, then young tail-to-head, for the
// first non-dirty page and discards it. Only the dirty flag is
// consulted: a clean page is evicted even while a transaction holds a
// lock on it. This engine never
// steals a dirty page out from under its owning transaction (NO-STEAL):
// if every candidate is dirty, eviction fails outright rather than
// writing back someone else's uncommitted work.
func (p *Pool) evictOne() error {
	for _, l := range []*list.List{p.old, p.young} {
		for e := l.Back(); e != nil; e = e.Prev() {
			fr := e.Value.(*frame)
			if fr.page.IsDirty() {
				continue
			}
			l.Remove(e)
			delete(p.index, fr.pid)
			p.evicted.Add([]byte(fr.pid))
			p.log.WithField("page", fr.pid).Debug("evicted page")
			return nil
		}
	}
	return dberrors.AllPagesDirty
}

// RemovePage drops pid from the pool without writing it back,
// regardless of dirty state; used when a page's file has deleted it
// (for example a freed B+-tree page).
func (p *Pool) RemovePage(pid tuple.PageID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := pid.String()
	el, ok := p.index[key]
	if !ok {
		return
	}
	fr := el.Value.(*frame)
	if fr.inYoung {
		p.young.Remove(el)
	} else {
		p.old.Remove(el)
	}
	delete(p.index, key)
}

// FlushPage writes pid's current contents back through its file and
// clears its dirty bit, if it is cached and dirty.
func (p *Pool) FlushPage(pid tuple.PageID) error {
	p.mu.Lock()
	el, ok := p.index[pid.String()]
	if !ok {
		p.mu.Unlock()
		return nil
	}
	fr := el.Value.(*frame)
	page := fr.page
	p.mu.Unlock()

	if !page.IsDirty() {
		return nil
	}
	file, ok := p.files[pid.TableID()]
	if !ok {
		return dberrors.NotFound
	}
	if err := file.WritePage(page); err != nil {
		return err
	}
	page.MarkDirty(false, 0)
	return nil
}

// FlushAllPages writes back every dirty page currently cached.
func (p *Pool) FlushAllPages() error {
	p.mu.Lock()
	pids := make([]tuple.PageID, 0, len(p.index))
	for _, el := range p.index {
		fr := el.Value.(*frame)
		if fr.page.IsDirty() {
			pids = append(pids, fr.page.ID())
		}
	}
	p.mu.Unlock()

	for _, pid := range pids {
		if err := p.FlushPage(pid); err != nil {
			return err
		}
	}
	return nil
}

// TransactionComplete flushes (on commit) or discards (on abort) every
// page dirtied by tid. On abort the pool never wrote tid's changes out
// in the first place (NO-STEAL), so discarding in memory is all that's
// needed to undo them; there is no log to replay against.
func (p *Pool) TransactionComplete(tid uint64, commit bool) error {
	p.mu.Lock()
	var toFlush []tuple.PageID
	var toDiscard []tuple.PageID
	for _, el := range p.index {
		fr := el.Value.(*frame)
		owner, dirty := fr.page.DirtyTxn()
		if !dirty || owner != tid {
			continue
		}
		if commit {
			toFlush = append(toFlush, fr.page.ID())
		} else {
			toDiscard = append(toDiscard, fr.page.ID())
		}
	}
	p.mu.Unlock()

	for _, pid := range toFlush {
		if err := p.FlushPage(pid); err != nil {
			return err
		}
	}
	for _, pid := range toDiscard {
		if err := p.reloadFromDisk(pid); err != nil {
			return err
		}
	}
	return nil
}

// reloadFromDisk discards an in-memory page's uncommitted changes by
// re-reading its on-disk copy over the cached entry.
func (p *Pool) reloadFromDisk(pid tuple.PageID) error {
	p.mu.Lock()
	file, ok := p.files[pid.TableID()]
	p.mu.Unlock()
	if !ok {
		return dberrors.NotFound
	}

	fresh, err := file.ReadPage(pid)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.index[pid.String()]
	if !ok {
		return nil
	}
	fr := el.Value.(*frame)
	fr.page = fresh
	return nil
}
