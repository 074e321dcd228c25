// Package docstore wires the Firebase app and its Firestore client, and gives
// repositories transaction-aware read and write helpers.
package docstore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Collection names shared with the web client.
const (
	Users           = "users"
	Patients        = "patients"
	Doctors         = "doctors"
	Therapists      = "therapists"
	Appointments    = "appointments"
	TherapySessions = "therapySessions"
	Feedback        = "feedback"
)

// ErrNotFound is returned by Get when the document does not exist.
var ErrNotFound = errors.New("document not found")

// NewApp initialises a Firebase app. When credentialsFile is empty the
// application default credentials are used.
func NewApp(ctx context.Context, projectID, credentialsFile string) (*firebase.App, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	return app, nil
}

// NewClient opens the Firestore client of app.
func NewClient(ctx context.Context, app *firebase.App) (*firestore.Client, error) {
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("open firestore client: %w", err)
	}
	return client, nil
}

type txKey struct{}

// TxFromContext returns the Firestore transaction started by Transactor, or nil.
func TxFromContext(ctx context.Context) *firestore.Transaction {
	tx, _ := ctx.Value(txKey{}).(*firestore.Transaction)
	return tx
}

// MaxTxWrites is the most document writes a single Firestore commit accepts.
const MaxTxWrites = 500

// Transactor runs a unit of work inside a Firestore transaction. Firestore
// may re-run fn on contention, so fn must not have side effects outside the
// store.
type Transactor struct {
	client *firestore.Client
}

func NewTransactor(client *firestore.Client) *Transactor {
	return &Transactor{client: client}
}

// MaxWrites reports the per-transaction write cap so callers can reject
// oversized units of work before starting them.
func (t *Transactor) MaxWrites() int { return MaxTxWrites }

func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}
	return t.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// Create writes a new document and fails if it already exists.
func Create(ctx context.Context, ref *firestore.DocumentRef, data interface{}) error {
	if tx := TxFromContext(ctx); tx != nil {
		return tx.Create(ref, data)
	}
	_, err := ref.Create(ctx, data)
	return err
}

// Set overwrites a document.
func Set(ctx context.Context, ref *firestore.DocumentRef, data interface{}) error {
	if tx := TxFromContext(ctx); tx != nil {
		return tx.Set(ref, data)
	}
	_, err := ref.Set(ctx, data)
	return err
}

// Get reads a document into dst. It returns ErrNotFound for missing documents.
func Get(ctx context.Context, ref *firestore.DocumentRef, dst interface{}) error {
	var snap *firestore.DocumentSnapshot
	var err error
	if tx := TxFromContext(ctx); tx != nil {
		snap, err = tx.Get(ref)
	} else {
		snap, err = ref.Get(ctx)
	}
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return err
	}
	return snap.DataTo(dst)
}

// Clause is one field filter of a query.
type Clause struct {
	Path  string
	Op    string
	Value interface{}
}

// Where narrows q by every clause.
func Where(q firestore.Query, clauses []Clause) firestore.Query {
	for _, c := range clauses {
		q = q.Where(c.Path, c.Op, c.Value)
	}
	return q
}

// All runs q and returns every matching snapshot.
func All(ctx context.Context, q firestore.Query) ([]*firestore.DocumentSnapshot, error) {
	var it *firestore.DocumentIterator
	if tx := TxFromContext(ctx); tx != nil {
		it = tx.Documents(q)
	} else {
		it = q.Documents(ctx)
	}
	defer it.Stop()
	return it.GetAll()
}

// Pinger checks that the Firestore backend answers queries.
type Pinger struct {
	Client *firestore.Client
}

func (p Pinger) Ping(ctx context.Context) error {
	it := p.Client.Collection(Users).Limit(1).Documents(ctx)
	defer it.Stop()
	if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return err
	}
	return nil
}

// Page slices an in-memory result set the way LIMIT/OFFSET would.
func Page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
