package download

import (
	"sync"
	"time"

	"github.com/dlan-project/dlan-core/build"
	"github.com/dlan-project/dlan-core/chunkstore"
	"github.com/dlan-project/dlan-core/persist"
	"github.com/dlan-project/dlan-core/syncutil"
)

// queueVersion is the on-disk FILE_QUEUE schema version: version 4
// stores a per-entry status rather than a boolean "complete", per
// spec.md §4.6.
const queueVersion = "4"

var queueMetadata = persist.Metadata{Header: "D-LAN File Queue", Version: queueVersion}

// persistedChunk is one chunk's on-disk status within a persisted
// download.
type persistedChunk struct {
	Num    int
	Digest chunkstore.Digest
	State  State
}

// persistedDownload is the on-disk form of a Download.
type persistedDownload struct {
	ID            string
	Name          string
	Size          int64
	NbChunks      int
	Digests       []chunkstore.Digest
	DonorID       string
	QueuePosition int
	Status        Status
	Chunks        []persistedChunk
}

// Queue is the ordered list of Download items, persisted to
// FILE_QUEUE every savePeriod.
type Queue struct {
	path       string
	savePeriod time.Duration

	tg syncutil.ThreadGroup

	mu        sync.Mutex
	downloads []*Download
}

// NewQueue returns an empty Queue persisting to path.
func NewQueue(path string, savePeriod time.Duration) *Queue {
	return &Queue{path: path, savePeriod: savePeriod}
}

// Add appends d to the tail of the queue.
func (q *Queue) Add(d *Download) {
	q.mu.Lock()
	d.QueuePosition = len(q.downloads)
	q.downloads = append(q.downloads, d)
	q.mu.Unlock()
}

// Downloads returns a snapshot of the queue in order.
func (q *Queue) Downloads() []*Download {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Download, len(q.downloads))
	copy(out, q.downloads)
	return out
}

// MoveDownloads atomically relocates the downloads named by ids so
// their new positions are contiguous immediately before (BEFORE) or
// after (AFTER) the download named by ref, preserving their mutual
// order, per spec.md §4.6.
type MoveDirection int

const (
	MoveBefore MoveDirection = iota
	MoveAfter
)

func (q *Queue) MoveDownloads(ref string, ids []string, dir MoveDirection) {
	q.mu.Lock()
	defer q.mu.Unlock()

	moving := make(map[string]bool, len(ids))
	for _, id := range ids {
		moving[id] = true
	}

	var movingList []*Download
	var rest []*Download
	for _, d := range q.downloads {
		if moving[d.ID] {
			movingList = append(movingList, d)
		} else {
			rest = append(rest, d)
		}
	}
	// preserve caller-specified relative order for the moving set.
	order := make(map[string]int, len(ids))
	for i, id := range ids {
		order[id] = i
	}
	sortByOrder(movingList, order)

	refIdx := -1
	for i, d := range rest {
		if d.ID == ref {
			refIdx = i
			break
		}
	}
	if refIdx == -1 {
		// reference not found: append the moving set at the tail.
		q.downloads = append(rest, movingList...)
		q.renumberLocked()
		return
	}

	insertAt := refIdx
	if dir == MoveAfter {
		insertAt = refIdx + 1
	}
	out := make([]*Download, 0, len(q.downloads))
	out = append(out, rest[:insertAt]...)
	out = append(out, movingList...)
	out = append(out, rest[insertAt:]...)
	q.downloads = out
	q.renumberLocked()
}

func sortByOrder(ds []*Download, order map[string]int) {
	for i := 1; i < len(ds); i++ {
		for j := i; j > 0 && order[ds[j].ID] < order[ds[j-1].ID]; j-- {
			ds[j], ds[j-1] = ds[j-1], ds[j]
		}
	}
}

func (q *Queue) renumberLocked() {
	for i, d := range q.downloads {
		d.QueuePosition = i
	}
}

// Save persists the current queue to FILE_QUEUE.
func (q *Queue) Save() error {
	q.mu.Lock()
	out := make([]persistedDownload, len(q.downloads))
	for i, d := range q.downloads {
		d.mu.RLock()
		pd := persistedDownload{
			ID:            d.ID,
			Name:          d.Descriptor.Name,
			Size:          d.Descriptor.Size,
			NbChunks:      d.Descriptor.NbChunks,
			Digests:       append([]chunkstore.Digest(nil), d.Descriptor.Digests...),
			DonorID:       d.DonorID,
			QueuePosition: d.QueuePosition,
			Status:        d.status,
		}
		for _, c := range d.chunks {
			pd.Chunks = append(pd.Chunks, persistedChunk{Num: c.Num, Digest: c.Digest, State: c.State()})
		}
		d.mu.RUnlock()
		out[i] = pd
	}
	q.mu.Unlock()

	return persist.SaveJSON(queueMetadata, out, q.path)
}

// Load reloads the queue from FILE_QUEUE. Per spec.md §4.6 and §8's
// invariant 6, a download previously ACTIVE returns to QUEUED and any chunk
// previously ACTIVE resets to WAITING: partial transfers are not resumed
// blindly across a restart.
func (q *Queue) Load(mirror *chunkstore.Mirror) error {
	var in []persistedDownload
	if err := persist.LoadJSON(queueMetadata, &in, q.path); err != nil {
		return err
	}

	downloads := make([]*Download, 0, len(in))
	for _, pd := range in {
		d := NewDownload(pd.ID, FileDescriptor{
			Name:     pd.Name,
			Size:     pd.Size,
			NbChunks: pd.NbChunks,
			Digests:  pd.Digests,
		}, pd.DonorID, pd.QueuePosition)
		d.status = pd.Status
		if d.status == StatusActive {
			d.status = StatusQueued
		}
		if len(pd.Chunks) > 0 {
			d.chunks = make([]*ChunkDownload, len(pd.Chunks))
			for i, pc := range pd.Chunks {
				cd := NewChunkDownload(pc.Num, pc.Digest, nil)
				if pc.State == StateActive {
					cd.state = StateWaiting
				} else {
					cd.state = pc.State
				}
				d.chunks[i] = cd
			}
		}
		downloads = append(downloads, d)
	}

	q.mu.Lock()
	q.downloads = downloads
	q.mu.Unlock()
	return nil
}

// StartAutoSave begins the periodic save_queue_period timer.
func (q *Queue) StartAutoSave() error {
	if err := q.tg.Add(); err != nil {
		return err
	}
	go func() {
		defer q.tg.Done()
		ticker := time.NewTicker(q.savePeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := q.Save(); err != nil {
					build.Severe("download: periodic queue save failed:", err)
				}
			case <-q.tg.StopChan():
				return
			}
		}
	}()
	return nil
}

// Stop halts the auto-save timer.
func (q *Queue) Stop() error {
	return q.tg.Stop()
}
