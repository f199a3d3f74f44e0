package eventlog

import "hash/fnv"

// PartitionFor returns the partition index for key under numPartitions,
// using FNV-1a hashing — the standard non-cryptographic hash used for
// Kafka-style key partitioning when the client library doesn't impose its
// own default partitioner.
func PartitionFor(key string, numPartitions int) int32 {
	if numPartitions <= 0 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int32(h.Sum32() % uint32(numPartitions))
}
