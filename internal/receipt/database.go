package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	receiptBucketName = "receipts"
	expenseBucketName = "expenses"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// DB defines the interface for database operations
type DB interface {
	// SaveReceipt inserts or replaces a receipt
	SaveReceipt(receipt *Receipt) error

	// GetReceipt retrieves a receipt by ID
	GetReceipt(id string) (*Receipt, error)

	// ListReceipts returns the receipts belonging to an owner
	ListReceipts(ownerID string) ([]*Receipt, error)

	// DeleteReceipt removes a receipt from the database
	DeleteReceipt(id string) error

	// SaveExpense inserts or replaces an expense
	SaveExpense(expense *Expense) error

	// GetExpense retrieves an expense by ID
	GetExpense(id string) (*Expense, error)

	// ListExpenses returns the expenses belonging to an owner
	ListExpenses(ownerID string) ([]*Expense, error)

	// DeleteExpense removes an expense from the database
	DeleteExpense(id string) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	// Create buckets if they don't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{receiptBucketName, expenseBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// put JSON-encodes v under key
func (b *BoltDB) put(bucketName, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", bucketName, err)
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(key), data)
	})
}

// get decodes the value under key into v
func (b *BoltDB) get(bucketName, key string, v any) error {
	return b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%s %s: %w", bucketName, key, ErrNotFound)
		}
		return json.Unmarshal(data, v)
	})
}

// each decodes every value in the bucket and hands it to fn
func (b *BoltDB) each(bucketName string, fn func(v []byte) error) error {
	return b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
			return fn(v)
		})
	})
}

func (b *BoltDB) delete(bucketName, key string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(key))
	})
}

// SaveReceipt saves a receipt to the database
func (b *BoltDB) SaveReceipt(receipt *Receipt) error {
	return b.put(receiptBucketName, receipt.ID, receipt)
}

// GetReceipt retrieves a receipt by ID
func (b *BoltDB) GetReceipt(id string) (*Receipt, error) {
	var receipt Receipt
	if err := b.get(receiptBucketName, id, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// ListReceipts returns all receipts of an owner
func (b *BoltDB) ListReceipts(ownerID string) ([]*Receipt, error) {
	receipts := make([]*Receipt, 0)
	err := b.each(receiptBucketName, func(v []byte) error {
		var receipt Receipt
		if err := json.Unmarshal(v, &receipt); err != nil {
			return fmt.Errorf("unmarshaling receipt: %w", err)
		}
		if receipt.OwnerID == ownerID {
			receipts = append(receipts, &receipt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

// DeleteReceipt removes a receipt from the database
func (b *BoltDB) DeleteReceipt(id string) error {
	return b.delete(receiptBucketName, id)
}

// SaveExpense saves an expense to the database
func (b *BoltDB) SaveExpense(expense *Expense) error {
	return b.put(expenseBucketName, expense.ID, expense)
}

// GetExpense retrieves an expense by ID
func (b *BoltDB) GetExpense(id string) (*Expense, error) {
	var expense Expense
	if err := b.get(expenseBucketName, id, &expense); err != nil {
		return nil, err
	}
	return &expense, nil
}

// ListExpenses returns all expenses of an owner
func (b *BoltDB) ListExpenses(ownerID string) ([]*Expense, error) {
	expenses := make([]*Expense, 0)
	err := b.each(expenseBucketName, func(v []byte) error {
		var expense Expense
		if err := json.Unmarshal(v, &expense); err != nil {
			return fmt.Errorf("unmarshaling expense: %w", err)
		}
		if expense.OwnerID == ownerID {
			expenses = append(expenses, &expense)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expenses, nil
}

// DeleteExpense removes an expense from the database
func (b *BoltDB) DeleteExpense(id string) error {
	return b.delete(expenseBucketName, id)
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
