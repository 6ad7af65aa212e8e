package storage

import "github.com/dgraph-io/badger/v4"

func badgerIterOptsKeyOnly(prefix []byte) badger.IteratorOptions {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	return opts
}

func badgerIterOptsPrefetchValues(prefix []byte, prefetchSize int) badger.IteratorOptions {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	if prefetchSize > 0 {
		opts.PrefetchSize = prefetchSize
	}
	opts.Prefix = prefix
	return opts
}

// collectIndexIDs returns the ids stored under an index prefix.
func collectIndexIDs(txn *badger.Txn, prefix []byte) []string {
	it := txn.NewIterator(badgerIterOptsKeyOnly(prefix))
	defer it.Close()

	var ids []string
	for it.Rewind(); it.Valid(); it.Next() {
		if id := idFromIndexKey(it.Item().Key(), len(prefix)); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
