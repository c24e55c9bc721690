// Package orchestrator implements the Core Orchestrator: a queue of
// workers to launch, N launcher goroutines, a live set of active workers,
// and bus lifecycle ownership.
package orchestrator

import (
	"context"
	"log"
	"sync"

	"github.com/cryptoagg/fireagg/internal/bus"
)

// Worker is anything the Core can launch: producers, sinks, the aggregator.
type Worker interface {
	Run(ctx context.Context) error
}

// defaultLaunchWorkers is the default number of launcher goroutines.
const defaultLaunchWorkers = 5

// Core owns the worker queue, the active worker set, and the bus's
// lifecycle: Init before any worker starts, Close after every worker has
// stopped.
type Core struct {
	Bus           bus.MessageBus
	LaunchWorkers int

	queue *workerQueue

	mu            sync.Mutex
	activeWorkers map[int]Worker
	nextID        int
}

// New constructs a Core. launchWorkers <= 0 uses defaultLaunchWorkers.
func New(b bus.MessageBus, launchWorkers int) *Core {
	if launchWorkers <= 0 {
		launchWorkers = defaultLaunchWorkers
	}
	return &Core{
		Bus:           b,
		LaunchWorkers: launchWorkers,
		queue:         newWorkerQueue(),
		activeWorkers: make(map[int]Worker),
	}
}

// PutWorker enqueues w for launch by the next free launcher goroutine.
func (c *Core) PutWorker(w Worker) {
	c.queue.Put(w)
}

// Run initializes the bus, starts LaunchWorkers launcher goroutines, and
// blocks until ctx is cancelled. On shutdown it waits for every active
// worker to return, then closes the bus.
func (c *Core) Run(ctx context.Context) error {
	if err := c.Bus.Init(ctx); err != nil {
		return err
	}

	var launcherWg sync.WaitGroup
	var workerWg sync.WaitGroup

	launcherWg.Add(c.LaunchWorkers)
	for i := 0; i < c.LaunchWorkers; i++ {
		go func() {
			defer launcherWg.Done()
			c.runLauncher(ctx, &workerWg)
		}()
	}

	launcherWg.Wait()
	workerWg.Wait()

	return c.Bus.Close(context.Background())
}

func (c *Core) runLauncher(ctx context.Context, workerWg *sync.WaitGroup) {
	for {
		w, err := c.queue.Get(ctx)
		if err != nil {
			return
		}

		c.mu.Lock()
		id := c.nextID
		c.nextID++
		c.activeWorkers[id] = w
		c.mu.Unlock()

		log.Printf("orchestrator: launching worker %d (%T)", id, w)

		workerWg.Add(1)
		go func(id int, w Worker) {
			defer workerWg.Done()
			defer func() {
				c.mu.Lock()
				delete(c.activeWorkers, id)
				c.mu.Unlock()
			}()
			if err := w.Run(ctx); err != nil {
				log.Printf("orchestrator: worker %d (%T) exited with error: %v", id, w, err)
			}
		}(id, w)
	}
}

// ActiveWorkerCount returns the number of workers currently running, for
// health checks and tests.
func (c *Core) ActiveWorkerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.activeWorkers)
}
