package broker

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestHashBalancerIsDeterministicPerKey(t *testing.T) {
	balancer := &kafka.Hash{}
	partitions := []int{0, 1, 2, 3, 4, 5}

	msg := kafka.Message{Key: []byte("user-42")}
	first := balancer.Balance(msg, partitions...)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, balancer.Balance(msg, partitions...))
	}
}

func TestHashBalancerSpreadsKeys(t *testing.T) {
	balancer := &kafka.Hash{}
	partitions := []int{0, 1, 2, 3, 4, 5, 6, 7}

	seen := make(map[int]bool)
	for i := 0; i < 100; i++ {
		msg := kafka.Message{Key: []byte{byte(i)}}
		seen[balancer.Balance(msg, partitions...)] = true
	}

	// Not a distribution test; just that the keys do not all collapse
	// onto one partition.
	assert.Greater(t, len(seen), 1)
}
