package shader

import (
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
)

// Set bundles where shader text comes from and what compiles it.
type Set struct {
	Library Library
	Backend Backend
	// Workers is the number of compiles run at once.
	Workers int
}

// Includes returns the header guarded include callbacks of the set's library.
func (s Set) Includes() (local, system IncludeFunc) {
	return HeaderGuardIncluder(s.Library)
}

// Private prepares a compiler for an engine shader: prefix goes in first as the
// version block, then the text of name from the private scope.
func (s Set) Private(stage Stage, prefix, name string) (*GLSLCompiler, error) {
	text, err := s.Library.PrivateText(name)
	if err != nil {
		return nil, err
	}
	local, system := s.Includes()
	return NewGLSLCompiler().
		Type(stage).
		AddSource("VersionBlock", prefix).
		AddSource(name, text).
		OnIncludeLocal(local).
		OnIncludeSystem(system), nil
}

var (
	poolsMutex sync.Mutex
	pools      = map[int]worker.DynamicWorkerPool{}
)

// compilePool returns the process wide pool for the given worker count, creating it once.
func compilePool(workers int) worker.DynamicWorkerPool {
	poolsMutex.Lock()
	defer poolsMutex.Unlock()
	pool, ok := pools[workers]
	if !ok {
		pool = worker.NewDynamicWorkerPool(workers, 256, 1*time.Second)
		pools[workers] = pool
	}
	return pool
}

// CompileAll compiles every compiler on a worker pool. Results keep the order of
// compilers. The first failure in that order is returned.
func (s Set) CompileAll(compilers []*GLSLCompiler) ([][]byte, error) {
	workers := s.Workers
	if workers <= 0 {
		workers = 1
	}
	pool := compilePool(workers)

	codes := make([][]byte, len(compilers))
	errs := make([]error, len(compilers))

	var wg sync.WaitGroup
	for i, c := range compilers {
		wg.Add(1)
		index, compiler := i, c
		pool.SubmitTask(worker.Task{
			ID: index,
			Do: func() (any, error) {
				defer wg.Done()
				codes[index], errs[index] = compiler.Compile(s.Backend)
				return nil, errs[index]
			},
		})
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("%s: %w", compilers[i].Name(), err)
		}
	}
	return codes, nil
}
