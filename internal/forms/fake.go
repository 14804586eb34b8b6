package forms

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/phrazzld/formrelay/internal/domain"
)

// Fake methods, used with FailNext.
const (
	MethodCreate = "create"
	MethodApply  = "apply"
	MethodRead   = "read"
)

// Fake is an in-memory form service for tests. It applies operations with
// the same positional semantics as the real service.
type Fake struct {
	mu       sync.Mutex
	forms    map[string]*Form
	nextID   int
	failures map[string][]error
	revoked  map[string]bool

	itemSeq int
	creates int
	batches [][]Operation
	reads   int
	tokens  []string
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{
		forms:    map[string]*Form{},
		failures: map[string][]error{},
		revoked:  map[string]bool{},
	}
}

var _ Client = (*Fake)(nil)

// FailNext queues errors returned by the next calls of method, one per call.
func (f *Fake) FailNext(method string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method] = append(f.failures[method], errs...)
}

// RevokeToken makes every call through a client built for token fail with
// an AuthError.
func (f *Fake) RevokeToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[token] = true
}

// Factory returns a ClientFactory whose clients share this Fake.
func (f *Fake) Factory() ClientFactory {
	return ClientFactoryFunc(func(_ context.Context, token string) (Client, error) {
		f.mu.Lock()
		f.tokens = append(f.tokens, token)
		f.mu.Unlock()
		return &fakeClient{fake: f, token: token}, nil
	})
}

// Tokens returns the access tokens clients were built with, in order.
func (f *Fake) Tokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.tokens)
}

// FormCount returns the number of forms created.
func (f *Fake) FormCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.forms)
}

// Batches returns every non-empty operation batch applied so far.
func (f *Fake) Batches() [][]Operation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.batches)
}

// Creates returns the number of successful Create calls.
func (f *Fake) Creates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}

// Reads returns the number of successful Read calls.
func (f *Fake) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// Form returns a copy of a stored form.
func (f *Fake) Form(externalID string) (*Form, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	form, ok := f.forms[externalID]
	if !ok {
		return nil, false
	}
	return cloneForm(form), true
}

func (f *Fake) popFailure(method string) error {
	queue := f.failures[method]
	if len(queue) == 0 {
		return nil
	}
	f.failures[method] = queue[1:]
	return queue[0]
}

// Create implements Client.
func (f *Fake) Create(_ context.Context, title, description string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.popFailure(MethodCreate); err != nil {
		return "", err
	}
	f.nextID++
	id := fmt.Sprintf("form-%d", f.nextID)
	f.forms[id] = &Form{
		ExternalID:  id,
		URL:         fmt.Sprintf("https://forms.example/%s/viewform", id),
		Title:       title,
		Description: description,
	}
	f.creates++
	return id, nil
}

// ApplyOperations implements Client. A batch either applies fully or not at all.
func (f *Fake) ApplyOperations(_ context.Context, externalID string, ops []Operation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.popFailure(MethodApply); err != nil {
		return err
	}
	form, ok := f.forms[externalID]
	if !ok {
		return domain.NewValidationError(fmt.Sprintf("form %s does not exist", externalID), nil)
	}

	next := cloneForm(form)
	for i, op := range ops {
		if err := f.applyOperation(next, op); err != nil {
			return domain.NewValidationError(fmt.Sprintf("operation %d (%s): %v", i, op.Kind, err), err)
		}
	}
	f.forms[externalID] = next
	if len(ops) > 0 {
		f.batches = append(f.batches, slices.Clone(ops))
	}
	return nil
}

// Read implements Client.
func (f *Fake) Read(_ context.Context, externalID string) (*Form, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.popFailure(MethodRead); err != nil {
		return nil, err
	}
	form, ok := f.forms[externalID]
	if !ok {
		return nil, domain.NewValidationError(fmt.Sprintf("form %s does not exist", externalID), nil)
	}
	f.reads++
	return cloneForm(form), nil
}

func (f *Fake) applyOperation(form *Form, op Operation) error {
	switch op.Kind {
	case OpUpdateInfo:
		form.Title, form.Description = op.Title, op.Description
	case OpUpdateSettings:
		form.IsQuiz = op.IsQuiz
	case OpCreateItem:
		if op.Item == nil || op.Index < 0 || op.Index > len(form.Items) {
			return fmt.Errorf("create index %d out of range", op.Index)
		}
		item := *op.Item
		f.itemSeq++
		item.ItemID = fmt.Sprintf("%s-item-%d", form.ExternalID, f.itemSeq)
		item.Options = slices.Clone(item.Options)
		form.Items = slices.Insert(form.Items, op.Index, item)
	case OpUpdateItem:
		if op.Item == nil || op.Index < 0 || op.Index >= len(form.Items) {
			return fmt.Errorf("update index %d out of range", op.Index)
		}
		item := *op.Item
		item.ItemID = form.Items[op.Index].ItemID
		item.Options = slices.Clone(item.Options)
		form.Items[op.Index] = item
	case OpDeleteItem:
		if op.Index < 0 || op.Index >= len(form.Items) {
			return fmt.Errorf("delete index %d out of range", op.Index)
		}
		form.Items = slices.Delete(form.Items, op.Index, op.Index+1)
	default:
		return fmt.Errorf("unknown operation %q", op.Kind)
	}
	return nil
}

func cloneForm(f *Form) *Form {
	out := *f
	out.Items = make([]Item, len(f.Items))
	for i, item := range f.Items {
		item.Options = slices.Clone(item.Options)
		out.Items[i] = item
	}
	return &out
}

type fakeClient struct {
	fake  *Fake
	token string
}

func (c *fakeClient) revoked() error {
	c.fake.mu.Lock()
	defer c.fake.mu.Unlock()
	if c.fake.revoked[c.token] {
		return domain.NewAuthError("access token rejected", nil)
	}
	return nil
}

func (c *fakeClient) Create(ctx context.Context, title, description string) (string, error) {
	if err := c.revoked(); err != nil {
		return "", err
	}
	return c.fake.Create(ctx, title, description)
}

func (c *fakeClient) ApplyOperations(ctx context.Context, externalID string, ops []Operation) error {
	if err := c.revoked(); err != nil {
		return err
	}
	return c.fake.ApplyOperations(ctx, externalID, ops)
}

func (c *fakeClient) Read(ctx context.Context, externalID string) (*Form, error) {
	if err := c.revoked(); err != nil {
		return nil, err
	}
	return c.fake.Read(ctx, externalID)
}
