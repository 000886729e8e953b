package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	appwf "github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

// Mock repositories

type mockExpenseRepo struct {
	mu       sync.Mutex
	expenses map[string]*entity.Expense
	saveErr  error
}

func newMockExpenseRepo() *mockExpenseRepo {
	return &mockExpenseRepo{expenses: make(map[string]*entity.Expense)}
}

func cloneExpense(e *entity.Expense) *entity.Expense {
	cp := *e
	cp.ApprovalChain = append([]entity.ChainEntry(nil), e.ApprovalChain...)
	return &cp
}

func (m *mockExpenseRepo) Create(ctx context.Context, expense *entity.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	expense.Version = 1
	m.expenses[expense.ID] = cloneExpense(expense)
	return nil
}

func (m *mockExpenseRepo) Get(ctx context.Context, tenantID, id string) (*entity.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.expenses[id]
	if !ok || e.TenantID != tenantID {
		return nil, approval.E("get expense", approval.ErrExpenseNotFound, "%s", id)
	}
	return cloneExpense(e), nil
}

func (m *mockExpenseRepo) Save(ctx context.Context, expense *entity.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	stored, ok := m.expenses[expense.ID]
	if !ok {
		return approval.E("save expense", approval.ErrExpenseNotFound, "%s", expense.ID)
	}
	if stored.Version != expense.Version {
		return approval.E("save expense", approval.ErrConcurrentModification, "%s", expense.ID)
	}
	expense.Version++
	m.expenses[expense.ID] = cloneExpense(expense)
	return nil
}

func (m *mockExpenseRepo) ListActionable(ctx context.Context, tenantID string, limit int) ([]*entity.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Expense
	for _, e := range m.expenses {
		if (tenantID == "" || e.TenantID == tenantID) && e.IsActionable() {
			out = append(out, cloneExpense(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockExpenseRepo) ListByEmployee(ctx context.Context, tenantID, employeeID string, limit, offset int) ([]*entity.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Expense
	for _, e := range m.expenses {
		if e.TenantID == tenantID && e.EmployeeID == employeeID {
			out = append(out, cloneExpense(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockExpenseRepo) stored(id string) *entity.Expense {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneExpense(m.expenses[id])
}

func (m *mockExpenseRepo) put(e *entity.Expense) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.Version == 0 {
		e.Version = 1
	}
	m.expenses[e.ID] = cloneExpense(e)
}

type mockWorkflowRepo struct {
	mu        sync.Mutex
	workflows map[string]*entity.Workflow
	created   int
}

func newMockWorkflowRepo() *mockWorkflowRepo {
	return &mockWorkflowRepo{workflows: make(map[string]*entity.Workflow)}
}

func (m *mockWorkflowRepo) Create(ctx context.Context, wf *entity.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *wf
	m.workflows[wf.ID] = &cp
	m.created++
	return nil
}

func (m *mockWorkflowRepo) Get(ctx context.Context, tenantID, id string) (*entity.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[id]
	if !ok || wf.TenantID != tenantID {
		return nil, approval.E("get workflow", approval.ErrWorkflowNotFound, "%s", id)
	}
	cp := *wf
	return &cp, nil
}

func (m *mockWorkflowRepo) GetByName(ctx context.Context, tenantID, name string) (*entity.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, wf := range m.workflows {
		if wf.TenantID == tenantID && wf.Name == name {
			cp := *wf
			return &cp, nil
		}
	}
	return nil, approval.E("get workflow", approval.ErrWorkflowNotFound, "%s", name)
}

func (m *mockWorkflowRepo) Update(ctx context.Context, wf *entity.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[wf.ID]; !ok {
		return approval.E("update workflow", approval.ErrWorkflowNotFound, "%s", wf.ID)
	}
	cp := *wf
	m.workflows[wf.ID] = &cp
	return nil
}

func (m *mockWorkflowRepo) List(ctx context.Context, tenantID string, includeInactive bool) ([]*entity.Workflow, error) {
	return m.filter(func(wf *entity.Workflow) bool {
		return wf.TenantID == tenantID && (includeInactive || wf.IsActive)
	}), nil
}

func (m *mockWorkflowRepo) ListActiveNonDefault(ctx context.Context, tenantID string) ([]*entity.Workflow, error) {
	return m.filter(func(wf *entity.Workflow) bool {
		return wf.TenantID == tenantID && wf.IsActive && !wf.IsDefault
	}), nil
}

func (m *mockWorkflowRepo) GetDefault(ctx context.Context, tenantID string) (*entity.Workflow, error) {
	list := m.filter(func(wf *entity.Workflow) bool {
		return wf.TenantID == tenantID && wf.IsDefault
	})
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (m *mockWorkflowRepo) CreateDefaultIfAbsent(ctx context.Context, wf *entity.Workflow) (*entity.Workflow, error) {
	if existing, _ := m.GetDefault(ctx, wf.TenantID); existing != nil {
		return existing, nil
	}
	if err := m.Create(ctx, wf); err != nil {
		return nil, err
	}
	return m.GetDefault(ctx, wf.TenantID)
}

func (m *mockWorkflowRepo) filter(keep func(*entity.Workflow) bool) []*entity.Workflow {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Workflow
	for _, wf := range m.workflows {
		if keep(wf) {
			cp := *wf
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

type mockUserRepo struct {
	mu    sync.Mutex
	users map[string]*entity.User
}

func newMockUserRepo(users ...*entity.User) *mockUserRepo {
	m := &mockUserRepo{users: make(map[string]*entity.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockUserRepo) Upsert(ctx context.Context, user *entity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *mockUserRepo) Get(ctx context.Context, id string) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, approval.E("get user", approval.ErrUserNotFound, "%s", id)
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) ListByTenant(ctx context.Context, tenantID string) ([]*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.User
	for _, u := range m.users {
		if u.TenantID == tenantID {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type mockHistoryRepo struct {
	mu      sync.Mutex
	records []*entity.ApprovalHistory
}

func (m *mockHistoryRepo) Create(ctx context.Context, history *entity.ApprovalHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	history.ID = int64(len(m.records) + 1)
	m.records = append(m.records, history)
	return nil
}

func (m *mockHistoryRepo) GetByExpenseID(ctx context.Context, expenseID string) ([]*entity.ApprovalHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.ApprovalHistory
	for _, h := range m.records {
		if h.ExpenseID == expenseID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *mockHistoryRepo) actions(expenseID string) []string {
	list, _ := m.GetByExpenseID(context.Background(), expenseID)
	out := make([]string, 0, len(list))
	for _, h := range list {
		out = append(out, h.ActionType)
	}
	return out
}

type mockTxManager struct {
	withTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.withTransactionFunc != nil {
		return m.withTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// mockDispatcher records published events and runs subscribed handlers
// synchronously on Dispatch
type mockDispatcher struct {
	mu        sync.Mutex
	published []*event.Event
	handlers  map[event.Type][]dispatcher.HandlerInfo
}

func newMockDispatcher() *mockDispatcher {
	return &mockDispatcher{handlers: make(map[event.Type][]dispatcher.HandlerInfo)}
}

func (m *mockDispatcher) Subscribe(eventType event.Type, name string, handler dispatcher.Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[eventType] = append(m.handlers[eventType], dispatcher.HandlerInfo{Name: name, EventType: eventType, Handler: handler})
}

func (m *mockDispatcher) Unsubscribe(eventType event.Type, name string) {}

func (m *mockDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	for _, h := range m.Handlers(evt.Type) {
		if err := h.Handler(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockDispatcher) Publish(ctx context.Context, events ...*event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, events...)
}

func (m *mockDispatcher) Handlers(eventType event.Type) []dispatcher.HandlerInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]dispatcher.HandlerInfo(nil), m.handlers[eventType]...)
}

func (m *mockDispatcher) Close() error { return nil }

func (m *mockDispatcher) types() []event.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]event.Type, 0, len(m.published))
	for _, e := range m.published {
		out = append(out, e.Type)
	}
	return out
}

func (m *mockDispatcher) last(t event.Type) *event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.published) - 1; i >= 0; i-- {
		if m.published[i].Type == t {
			return m.published[i]
		}
	}
	return nil
}

func (m *mockDispatcher) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}

type mockLogger struct {
	mu    sync.Mutex
	warns []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}
func (m *mockLogger) Warn(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warns = append(m.warns, msg)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

const testTenant = "acme"

func user(id, role, managerID string) *entity.User {
	return &entity.User{
		ID:         id,
		TenantID:   testTenant,
		Name:       id,
		Role:       role,
		Department: "engineering",
		ManagerID:  managerID,
		IsActive:   true,
	}
}

// harness wires the approval services over in-memory repositories
type harness struct {
	expenses   *mockExpenseRepo
	workflows  *mockWorkflowRepo
	users      *mockUserRepo
	history    *mockHistoryRepo
	dispatcher *mockDispatcher
	logger     *mockLogger
	clock      *testClock

	directory  DirectoryService
	selector   WorkflowSelector
	builder    ChainBuilder
	approval   ApprovalService
	escalation EscalationService
	workflow   WorkflowService
}

func newHarness(users ...*entity.User) *harness {
	h := &harness{
		expenses:   newMockExpenseRepo(),
		workflows:  newMockWorkflowRepo(),
		users:      newMockUserRepo(users...),
		history:    &mockHistoryRepo{},
		dispatcher: newMockDispatcher(),
		logger:     &mockLogger{},
		clock:      &testClock{now: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)},
	}
	tx := &mockTxManager{}

	h.directory = NewDirectoryService(h.users, h.logger)
	h.selector = NewWorkflowSelector(h.workflows, h.logger)
	h.builder = NewChainBuilder(h.directory, h.logger, WithChainClock(h.clock.Now), WithEntryIDs(sequentialIDs("e")))
	lifecycle := appwf.NewLifecycle(h.history, appwf.WithClock(h.clock.Now))

	h.approval = NewApprovalService(h.expenses, h.workflows, h.history, h.directory, h.selector, h.builder,
		lifecycle, tx, h.dispatcher, h.logger, WithApprovalClock(h.clock.Now))
	h.escalation = NewEscalationService(h.expenses, h.workflows, h.history, h.directory, tx, h.dispatcher,
		h.logger, WithEscalationClock(h.clock.Now))
	h.workflow = NewWorkflowService(h.workflows, h.directory, h.selector, h.builder, tx, h.logger)
	return h
}

func (h *harness) addWorkflow(wf *entity.Workflow) *entity.Workflow {
	if wf.TenantID == "" {
		wf.TenantID = testTenant
	}
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = h.clock.Now()
	}
	wf.IsActive = true
	_ = h.workflows.Create(context.Background(), wf)
	return wf
}
