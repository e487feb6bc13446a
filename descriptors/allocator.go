package descriptors

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/core1_1"
	"golang.org/x/exp/slog"
)

// MaxSetsPerPool caps the size of any single pool created by Allocator.
// Growth stops escalating once a pool reaches this many sets.
const MaxSetsPerPool = 4096

// PoolSizeRatio declares how many descriptors of a given type each set in a
// pool is expected to consume. A pool sized for N sets reserves
// N*Ratio descriptors of Type.
type PoolSizeRatio struct {
	Type  core1_0.DescriptorType
	Ratio float32
}

// Allocator hands out descriptor sets from a growing collection of pools.
// Pools that report themselves exhausted are parked on a full list and stay
// out of rotation until ClearPools resets them. Each new pool is 1.5x the
// size of the previous one, up to MaxSetsPerPool.
//
// Allocator is not safe for concurrent use.
type Allocator struct {
	logger *slog.Logger

	ratios      []PoolSizeRatio
	setsPerPool int
	readyPools  []core1_0.DescriptorPool
	fullPools   []core1_0.DescriptorPool
}

// NewAllocator creates an Allocator that is not yet usable - call Init before
// the first Allocate.
func NewAllocator(logger *slog.Logger) *Allocator {
	return &Allocator{
		logger: logger,
	}
}

// Init creates the first pool, sized for maxSets descriptor sets at the
// provided ratios, and primes the growth schedule.
func (a *Allocator) Init(device core1_0.Device, maxSets int, ratios []PoolSizeRatio) error {
	a.logger.Debug("Allocator::Init")

	if maxSets < 1 {
		return errors.Newf("attempted to initialize a descriptor allocator with an invalid set count %d", maxSets)
	}

	a.ratios = append(a.ratios[:0], ratios...)

	pool, err := a.createPool(device, maxSets)
	if err != nil {
		return err
	}

	a.setsPerPool = nextPoolSize(maxSets)
	a.readyPools = append(a.readyPools, pool)
	return nil
}

// Allocate carves a descriptor set for layout out of the current ready pool.
// If the pool comes back exhausted or fragmented it is parked and the
// allocation retries once from a fresh pool. An allocation failure from a
// fresh pool is a real error.
func (a *Allocator) Allocate(device core1_0.Device, layout core1_0.DescriptorSetLayout) (core1_0.DescriptorSet, error) {
	pool, err := a.getPool(device)
	if err != nil {
		return nil, err
	}

	sets, res, err := device.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: pool,
		SetLayouts:     []core1_0.DescriptorSetLayout{layout},
	})
	if res == core1_1.VkErrorOutOfPoolMemory || res == core1_0.VKErrorFragmentedPool {
		a.fullPools = append(a.fullPools, pool)

		pool, err = a.getPool(device)
		if err != nil {
			return nil, err
		}

		sets, _, err = device.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
			DescriptorPool: pool,
			SetLayouts:     []core1_0.DescriptorSetLayout{layout},
		})
		if err != nil {
			a.fullPools = append(a.fullPools, pool)
			return nil, errors.Wrap(err, "descriptor set allocation failed from a fresh pool")
		}
	} else if err != nil {
		a.readyPools = append(a.readyPools, pool)
		return nil, err
	}

	a.readyPools = append(a.readyPools, pool)
	return sets[0], nil
}

// ClearPools resets every pool owned by the allocator and returns parked
// pools to the ready rotation. Sets previously allocated from this allocator
// become invalid.
func (a *Allocator) ClearPools() error {
	a.logger.Debug("Allocator::ClearPools")

	for _, pool := range a.readyPools {
		_, err := pool.Reset(0)
		if err != nil {
			return err
		}
	}
	for _, pool := range a.fullPools {
		_, err := pool.Reset(0)
		if err != nil {
			return err
		}
		a.readyPools = append(a.readyPools, pool)
	}
	a.fullPools = a.fullPools[:0]
	return nil
}

// DestroyPools destroys every pool owned by the allocator. The allocator must
// be re-initialized with Init before it can allocate again.
func (a *Allocator) DestroyPools() {
	a.logger.Debug("Allocator::DestroyPools")

	for _, pool := range a.readyPools {
		pool.Destroy(nil)
	}
	a.readyPools = nil
	for _, pool := range a.fullPools {
		pool.Destroy(nil)
	}
	a.fullPools = nil
}

func (a *Allocator) getPool(device core1_0.Device) (core1_0.DescriptorPool, error) {
	count := len(a.readyPools)
	if count > 0 {
		pool := a.readyPools[count-1]
		a.readyPools = a.readyPools[:count-1]
		return pool, nil
	}

	pool, err := a.createPool(device, a.setsPerPool)
	if err != nil {
		return nil, err
	}

	a.setsPerPool = nextPoolSize(a.setsPerPool)
	return pool, nil
}

func (a *Allocator) createPool(device core1_0.Device, setCount int) (core1_0.DescriptorPool, error) {
	poolSizes := make([]core1_0.DescriptorPoolSize, 0, len(a.ratios))
	for _, ratio := range a.ratios {
		poolSizes = append(poolSizes, core1_0.DescriptorPoolSize{
			Type:            ratio.Type,
			DescriptorCount: int(ratio.Ratio * float32(setCount)),
		})
	}

	pool, _, err := device.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets:   setCount,
		PoolSizes: poolSizes,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create a descriptor pool for %d sets", setCount)
	}

	return pool, nil
}

func nextPoolSize(current int) int {
	grown := current * 3 / 2
	if grown > MaxSetsPerPool {
		grown = MaxSetsPerPool
	}
	return grown
}
