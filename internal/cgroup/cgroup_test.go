package cgroup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellsys/cellsd/internal/isolation"
)

func TestExists_False(t *testing.T) {
	assert.False(t, Exists("definitely-not-a-real-cell-name-xyz"), "Exists should be false for a cell with no cgroup directory")
}

func TestToResources_CPUWeightAndMax(t *testing.T) {
	weight := uint64(200)
	maxMicros := int64(50000)

	res := toResources(isolation.Resources{CPU: &isolation.CPU{Weight: &weight, MaxMicros: &maxMicros}})
	require.NotNil(t, res.CPU)
	require.NotNil(t, res.CPU.Weight)
	assert.Equal(t, weight, *res.CPU.Weight)
	assert.NotEmpty(t, res.CPU.Max, "expected CPU.Max to be populated from MaxMicros")
}

func TestToResources_CpusetWithoutCPU(t *testing.T) {
	res := toResources(isolation.Resources{Cpuset: &isolation.Cpuset{Cpus: "0-3", Mems: "0"}})
	require.NotNil(t, res.CPUSet)
	assert.Equal(t, "0-3", res.CPUSet.Cpus)
	assert.Equal(t, "0", res.CPUSet.Mems)
	assert.NotNil(t, res.CPU, "orCPU should synthesize an empty CPU struct when only cpuset is set")
}

func TestToResources_Memory(t *testing.T) {
	max := int64(1 << 30)
	res := toResources(isolation.Resources{Memory: &isolation.Memory{Max: &max}})
	require.NotNil(t, res.Memory)
	require.NotNil(t, res.Memory.Max)
	assert.Equal(t, max, *res.Memory.Max)
}

func TestToResources_Empty(t *testing.T) {
	res := toResources(isolation.Resources{})
	assert.Nil(t, res.CPU)
	assert.Nil(t, res.CPUSet)
	assert.Nil(t, res.Memory)
}
