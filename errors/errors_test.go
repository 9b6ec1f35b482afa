package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelWrappingPreservesType(t *testing.T) {
	err := Wrap(ErrTransport, "querying job 4211")
	err = Wrapf(err, "sync pass %d", 3)

	assert.True(t, IsTransport(err))
	assert.False(t, IsConsistency(err))
}

func TestTimeoutCountsAsTransport(t *testing.T) {
	err := Wrap(ErrTimeout, "squeue did not return")
	assert.True(t, IsTransport(err))
}

func TestNewConsistencyCarriesMessage(t *testing.T) {
	err := NewConsistency("job %s already submitted", "a1b2")
	assert.True(t, IsConsistency(err))
	assert.Contains(t, err.Error(), "a1b2")
}

func TestDetailsAccumulate(t *testing.T) {
	err := New("base")
	err = WithDetail(err, "Job ID: 17")
	err = WithDetail(err, "Partition: gpu")

	details := GetAllDetails(err)
	assert.Len(t, details, 2)
}
