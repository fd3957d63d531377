package service

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/coinledger/internal/domain"
)

// In-memory store implementations backing the service tests. The balance
// store mirrors the production conditional-update semantics: any step that
// would drive available or locked negative fails with ErrInsufficientFunds
// and leaves the row unchanged.

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeAccountStore struct {
	mu    sync.Mutex
	users map[string]bool
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{users: make(map[string]bool)}
}

func (f *fakeAccountStore) Ensure(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[userID] = true
	return nil
}

func (f *fakeAccountStore) has(userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[userID]
}

type fakeBalanceStore struct {
	mu   sync.Mutex
	rows map[string]*domain.Balance

	// failUser makes Adjust for that user fail with failErr; a non-empty
	// failAsset narrows the failure to one asset.
	failUser  string
	failAsset string
	failErr   error
}

func newFakeBalanceStore() *fakeBalanceStore {
	return &fakeBalanceStore{rows: make(map[string]*domain.Balance)}
}

func balKey(userID, asset string) string { return userID + "|" + asset }

func (f *fakeBalanceStore) Get(_ context.Context, userID, asset string) (domain.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[balKey(userID, asset)]
	if !ok {
		return domain.Balance{}, domain.ErrNotFound
	}
	return *row, nil
}

func (f *fakeBalanceStore) List(_ context.Context, userID string) ([]domain.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Balance
	for _, row := range f.rows {
		if row.UserID == userID {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, nil
}

func (f *fakeBalanceStore) Adjust(_ context.Context, userID, asset string, delta float64) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if userID == f.failUser && f.failErr != nil && (f.failAsset == "" || asset == f.failAsset) {
		return 0, f.failErr
	}
	key := balKey(userID, asset)
	row, ok := f.rows[key]
	if !ok {
		if delta < 0 {
			return 0, domain.ErrInsufficientFunds
		}
		row = &domain.Balance{UserID: userID, Asset: asset}
		f.rows[key] = row
	}
	if row.Available+delta < 0 {
		return 0, domain.ErrInsufficientFunds
	}
	row.Available += delta
	return row.Available, nil
}

func (f *fakeBalanceStore) Lock(_ context.Context, userID, asset string, amount float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[balKey(userID, asset)]
	if !ok || row.Available < amount {
		return domain.ErrInsufficientFunds
	}
	row.Available -= amount
	row.Locked += amount
	return nil
}

func (f *fakeBalanceStore) Unlock(_ context.Context, userID, asset string, amount float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[balKey(userID, asset)]
	if !ok || row.Locked < amount {
		return domain.ErrInsufficientFunds
	}
	row.Locked -= amount
	row.Available += amount
	return nil
}

func (f *fakeBalanceStore) SpendLocked(_ context.Context, userID, asset string, amount float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[balKey(userID, asset)]
	if !ok || row.Locked < amount {
		return domain.ErrInsufficientFunds
	}
	row.Locked -= amount
	return nil
}

// set seeds a balance row directly, bypassing the conditional checks.
func (f *fakeBalanceStore) set(userID, asset string, available, locked float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[balKey(userID, asset)] = &domain.Balance{
		UserID:    userID,
		Asset:     asset,
		Available: available,
		Locked:    locked,
	}
}

func (f *fakeBalanceStore) available(userID, asset string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.rows[balKey(userID, asset)]; ok {
		return row.Available
	}
	return 0
}

func (f *fakeBalanceStore) locked(userID, asset string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.rows[balKey(userID, asset)]; ok {
		return row.Locked
	}
	return 0
}

type fakeStakeStore struct {
	mu     sync.Mutex
	stakes map[string]domain.Stake

	upsertErr error
	// afterList runs once the listing snapshot has been taken, outside the
	// store mutex, to interleave a concurrent mutation.
	afterList func()
}

func newFakeStakeStore() *fakeStakeStore {
	return &fakeStakeStore{stakes: make(map[string]domain.Stake)}
}

func (f *fakeStakeStore) Get(_ context.Context, userID, asset string) (domain.Stake, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stake, ok := f.stakes[balKey(userID, asset)]
	if !ok {
		return domain.Stake{}, domain.ErrNotFound
	}
	return stake, nil
}

func (f *fakeStakeStore) Upsert(_ context.Context, stake domain.Stake) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.stakes[balKey(stake.UserID, stake.Asset)] = stake
	return nil
}

func (f *fakeStakeStore) Delete(_ context.Context, userID, asset string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.stakes, balKey(userID, asset))
	return nil
}

func (f *fakeStakeStore) ListByUser(_ context.Context, userID string) ([]domain.Stake, error) {
	f.mu.Lock()
	var out []domain.Stake
	for _, stake := range f.stakes {
		if stake.UserID == userID {
			out = append(out, stake)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	f.mu.Unlock()

	if f.afterList != nil {
		f.afterList()
	}
	return out, nil
}

type fakeOrderStore struct {
	mu     sync.Mutex
	orders map[string]domain.Order
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: make(map[string]domain.Order)}
}

func (f *fakeOrderStore) Create(_ context.Context, order domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[order.ID] = order
	return nil
}

func (f *fakeOrderStore) Get(_ context.Context, id string) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return order, nil
}

func (f *fakeOrderStore) UpdateFill(_ context.Context, id string, filled float64, status domain.OrderStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	order.Filled = filled
	order.Status = status
	f.orders[id] = order
	return nil
}

func (f *fakeOrderStore) UpdateStatus(_ context.Context, id string, status domain.OrderStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	order.Status = status
	f.orders[id] = order
	return nil
}

func (f *fakeOrderStore) ListCrossing(_ context.Context, pair domain.TradingPair, side domain.OrderSide, limit float64) ([]domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Order
	for _, order := range f.orders {
		if order.Pair != pair || order.Side != side {
			continue
		}
		if order.Status != domain.OrderStatusOpen && order.Status != domain.OrderStatusPartial {
			continue
		}
		if side == domain.OrderSideSell && order.Price > limit {
			continue
		}
		if side == domain.OrderSideBuy && order.Price < limit {
			continue
		}
		out = append(out, order)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			if side == domain.OrderSideSell {
				return out[i].Price < out[j].Price
			}
			return out[i].Price > out[j].Price
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (f *fakeOrderStore) ListOpenByUser(_ context.Context, userID string) ([]domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Order
	for _, order := range f.orders {
		if order.UserID != userID {
			continue
		}
		if order.Status != domain.OrderStatusOpen && order.Status != domain.OrderStatusPartial {
			continue
		}
		out = append(out, order)
	}
	return out, nil
}

type fakeTransactionStore struct {
	mu      sync.Mutex
	records []domain.TransactionRecord

	appendErr error
}

func newFakeTransactionStore() *fakeTransactionStore {
	return &fakeTransactionStore{}
}

func (f *fakeTransactionStore) Append(_ context.Context, rec domain.TransactionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeTransactionStore) ListByUser(_ context.Context, userID string, limit int) ([]domain.TransactionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.TransactionRecord
	for i := len(f.records) - 1; i >= 0 && len(out) < limit; i-- {
		rec := f.records[i]
		if rec.SenderID == userID || rec.ReceiverID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeTransactionStore) ListOlderThan(_ context.Context, cutoff time.Time, limit int) ([]domain.TransactionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.TransactionRecord
	for _, rec := range f.records {
		if rec.CreatedAt.Before(cutoff) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeTransactionStore) DeleteBatch(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := f.records[:0]
	for _, rec := range f.records {
		if !drop[rec.ID] {
			kept = append(kept, rec)
		}
	}
	f.records = kept
	return nil
}

func (f *fakeTransactionStore) all() []domain.TransactionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.TransactionRecord, len(f.records))
	copy(out, f.records)
	return out
}

func (f *fakeTransactionStore) byKind(kind domain.TransactionKind) []domain.TransactionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.TransactionRecord
	for _, rec := range f.records {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out
}

type fakeFriendStore struct {
	mu       sync.Mutex
	links    map[string]bool
	requests map[string]domain.FriendRequest
}

func newFakeFriendStore() *fakeFriendStore {
	return &fakeFriendStore{
		links:    make(map[string]bool),
		requests: make(map[string]domain.FriendRequest),
	}
}

func (f *fakeFriendStore) AddFriendship(_ context.Context, userID, friendID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links[userID+"|"+friendID] = true
	f.links[friendID+"|"+userID] = true
	return nil
}

func (f *fakeFriendStore) ListFriends(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for key := range f.links {
		if len(key) > len(userID) && key[:len(userID)+1] == userID+"|" {
			out = append(out, key[len(userID)+1:])
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeFriendStore) AreFriends(_ context.Context, userID, friendID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.links[userID+"|"+friendID], nil
}

func (f *fakeFriendStore) CreateRequest(_ context.Context, req domain.FriendRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.requests {
		if existing.SenderID == req.SenderID && existing.ReceiverID == req.ReceiverID &&
			existing.Status == domain.FriendRequestPending {
			return domain.ErrDuplicateRequest
		}
	}
	f.requests[req.ID] = req
	return nil
}

func (f *fakeFriendStore) GetPendingRequest(_ context.Context, senderID, receiverID string) (domain.FriendRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, req := range f.requests {
		if req.SenderID == senderID && req.ReceiverID == receiverID &&
			req.Status == domain.FriendRequestPending {
			return req, nil
		}
	}
	return domain.FriendRequest{}, domain.ErrNotFound
}

func (f *fakeFriendStore) UpdateRequestStatus(_ context.Context, id string, status domain.FriendRequestStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return domain.ErrNotFound
	}
	req.Status = status
	f.requests[id] = req
	return nil
}

func (f *fakeFriendStore) ListPendingByReceiver(_ context.Context, receiverID string) ([]domain.FriendRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.FriendRequest
	for _, req := range f.requests {
		if req.ReceiverID == receiverID && req.Status == domain.FriendRequestPending {
			out = append(out, req)
		}
	}
	return out, nil
}

func (f *fakeFriendStore) ExpirePending(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var swept int64
	for id, req := range f.requests {
		if req.Status == domain.FriendRequestPending && req.CreatedAt.Before(cutoff) {
			req.Status = domain.FriendRequestDeclined
			f.requests[id] = req
			swept++
		}
	}
	return swept, nil
}

// fakeLockManager backs each key with a real mutex so concurrent tests
// exercise the same serialization the Redis locks provide.
type fakeLockManager struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newFakeLockManager() *fakeLockManager {
	return &fakeLockManager{locks: make(map[string]*sync.Mutex)}
}

func (f *fakeLockManager) mutexFor(key string) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.locks[key]
	if !ok {
		m = &sync.Mutex{}
		f.locks[key] = m
	}
	return m
}

func (f *fakeLockManager) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	m := f.mutexFor(key)
	if !m.TryLock() {
		return nil, domain.ErrLockHeld
	}
	return m.Unlock, nil
}

func (f *fakeLockManager) AcquireWait(_ context.Context, key string, _ time.Duration) (func(), error) {
	m := f.mutexFor(key)
	m.Lock()
	return m.Unlock, nil
}

type fakeRateLimiter struct {
	allow bool
}

func (f *fakeRateLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return f.allow, nil
}

func (f *fakeRateLimiter) Wait(context.Context, string) error { return nil }

type fakeEventBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streamed  map[string][]domain.StreamMessage
	seq       int
}

func newFakeEventBus() *fakeEventBus {
	return &fakeEventBus{
		published: make(map[string][][]byte),
		streamed:  make(map[string][]domain.StreamMessage),
	}
}

func (f *fakeEventBus) Publish(_ context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[channel] = append(f.published[channel], payload)
	return nil
}

func (f *fakeEventBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (f *fakeEventBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.streamed[stream] = append(f.streamed[stream], domain.StreamMessage{
		ID:      strconv.Itoa(f.seq),
		Payload: payload,
	})
	return nil
}

func (f *fakeEventBus) StreamRead(_ context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	after, _ := strconv.Atoi(lastID)
	var out []domain.StreamMessage
	for _, msg := range f.streamed[stream] {
		id, _ := strconv.Atoi(msg.ID)
		if id <= after {
			continue
		}
		out = append(out, msg)
		if len(out) == count {
			break
		}
	}
	return out, nil
}

func (f *fakeEventBus) publishedCount(channel string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published[channel])
}

type fakePriceSource struct {
	mu     sync.Mutex
	prices map[string]float64
	calls  int
	err    error
}

func newFakePriceSource(prices map[string]float64) *fakePriceSource {
	return &fakePriceSource{prices: prices}
}

func (f *fakePriceSource) GetPrice(_ context.Context, asset, _ string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	price, ok := f.prices[asset]
	if !ok {
		return 0, domain.ErrPriceUnavailable
	}
	return price, nil
}

func (f *fakePriceSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeBlobReader serves preloaded archive objects by path.
type fakeBlobReader struct {
	objects map[string][]byte
}

func (f *fakeBlobReader) Get(_ context.Context, path string) (io.ReadCloser, error) {
	data, ok := f.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeBlobReader) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo
	for path, data := range f.objects {
		if strings.HasPrefix(path, prefix) {
			infos = append(infos, domain.BlobInfo{Path: path, Size: int64(len(data))})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos, nil
}

type cachedPrice struct {
	price float64
	ts    time.Time
}

type fakePriceCache struct {
	mu     sync.Mutex
	prices map[string]cachedPrice
}

func newFakePriceCache() *fakePriceCache {
	return &fakePriceCache{prices: make(map[string]cachedPrice)}
}

func (f *fakePriceCache) SetPrice(_ context.Context, asset, fiat string, price float64, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[asset+"|"+fiat] = cachedPrice{price: price, ts: ts}
	return nil
}

func (f *fakePriceCache) GetPrice(_ context.Context, asset, fiat string) (float64, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.prices[asset+"|"+fiat]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return entry.price, entry.ts, nil
}

// Interface conformance for the fakes.
var (
	_ domain.AccountStore     = (*fakeAccountStore)(nil)
	_ domain.BalanceStore     = (*fakeBalanceStore)(nil)
	_ domain.StakeStore       = (*fakeStakeStore)(nil)
	_ domain.OrderStore       = (*fakeOrderStore)(nil)
	_ domain.TransactionStore = (*fakeTransactionStore)(nil)
	_ domain.FriendStore      = (*fakeFriendStore)(nil)
	_ domain.LockManager      = (*fakeLockManager)(nil)
	_ domain.RateLimiter      = (*fakeRateLimiter)(nil)
	_ domain.EventBus         = (*fakeEventBus)(nil)
	_ domain.PriceSource      = (*fakePriceSource)(nil)
	_ domain.PriceCache       = (*fakePriceCache)(nil)
	_ domain.BlobReader       = (*fakeBlobReader)(nil)
)
