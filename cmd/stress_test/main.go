package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/little-lemon/internal/adapter/storage"
	"github.com/rl1809/little-lemon/internal/core/domain"
	"github.com/rl1809/little-lemon/internal/core/service"
	"github.com/rl1809/little-lemon/internal/port"
	"github.com/rl1809/little-lemon/internal/telemetry"
)

// Fires concurrent checkouts of one cart. Every attempt but one must fail
// and the placed order must carry the whole cart.
func main() {
	redisAddr := flag.String("redis", "", "redis address; empty uses the in-process cache")
	totalRequests := flag.Int("requests", 50, "concurrent checkout attempts")
	withKeys := flag.Bool("idempotency", false, "send the same Idempotency-Key on every attempt")
	flag.Parse()

	ctx := context.Background()
	tel := telemetry.Nop()
	metrics := telemetry.MustNewMetrics(tel.Meter)

	var cache port.CacheRepository = storage.NewMemoryCache()
	if *redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect redis: %v\n", err)
			os.Exit(1)
		}
		defer rdb.Close()
		cache = storage.NewRedisAdapter(rdb)
	}

	db := storage.NewMemoryAdapter()
	if err := db.EnsureGroups(ctx, domain.Groups); err != nil {
		fmt.Fprintf(os.Stderr, "ensure groups: %v\n", err)
		os.Exit(1)
	}
	user := db.CreateUser(fmt.Sprintf("stress-%d", time.Now().UnixNano()), "stress@littlelemon.test")
	customer := domain.Principal{UserID: user.ID, Username: user.Username, Role: domain.RoleCustomer}

	cartService := service.NewCartService(db, metrics, tel.Logger)
	for i, price := range []string{"2.50", "4.00", "1.25"} {
		item, err := db.CreateMenuItem(ctx, domain.MenuItem{
			Title: fmt.Sprintf("Stress item %d", i),
			Price: decimal.RequireFromString(price),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "create menu item: %v\n", err)
			os.Exit(1)
		}
		if _, err := cartService.AddLine(ctx, customer, item.ID, i+1); err != nil {
			fmt.Fprintf(os.Stderr, "add cart line: %v\n", err)
			os.Exit(1)
		}
	}
	expectedTotal := decimal.RequireFromString("14.25")

	orderService := service.NewOrderService(db, cache, service.OrderServiceConfig{
		EventQueueSize: *totalRequests,
	}, tel, metrics)
	defer orderService.Close()

	// Drain the event queue in background
	go func() {
		for range orderService.GetEventQueue() {
		}
	}()

	var (
		successCount   atomic.Int32
		emptyCount     atomic.Int32
		duplicateCount atomic.Int32
		otherCount     atomic.Int32
		placed         atomic.Value
	)

	var wg sync.WaitGroup
	start := time.Now()
	key := fmt.Sprintf("stress-%d", time.Now().UnixNano())

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			var idem string
			if *withKeys {
				idem = key
			}
			order, err := orderService.PlaceOrder(ctx, customer, idem)
			switch {
			case err == nil:
				successCount.Add(1)
				placed.Store(order)
			case errors.Is(err, domain.ErrEmptyCart):
				emptyCount.Add(1)
			case errors.Is(err, domain.ErrDuplicateRequest):
				duplicateCount.Add(1)
			default:
				otherCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()

	fmt.Println("========== CHECKOUT STRESS RESULTS ==========")
	fmt.Printf("Total Requests:   %d\n", *totalRequests)
	fmt.Printf("Placed:           %d\n", success)
	fmt.Printf("Empty cart:       %d\n", emptyCount.Load())
	fmt.Printf("Conflict:         %d\n", duplicateCount.Load())
	fmt.Printf("Other errors:     %d\n", otherCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("=============================================")

	ok := true
	if success == 1 && otherCount.Load() == 0 {
		fmt.Println("PASS: exactly one order placed")
	} else {
		fmt.Printf("FAIL: expected 1 order and no unexpected errors, got %d placed, %d other\n", success, otherCount.Load())
		ok = false
	}

	if order, isOrder := placed.Load().(domain.Order); isOrder {
		if order.Total.Equal(expectedTotal) && len(order.Items) == 3 {
			fmt.Printf("PASS: order total %s over %d items\n", order.Total.StringFixed(2), len(order.Items))
		} else {
			fmt.Printf("FAIL: expected total %s over 3 items, got %s over %d\n",
				expectedTotal.StringFixed(2), order.Total.StringFixed(2), len(order.Items))
			ok = false
		}
	}

	lines, _ := db.ListCartLines(ctx, user.ID)
	if len(lines) == 0 {
		fmt.Println("PASS: cart emptied")
	} else {
		fmt.Printf("FAIL: expected empty cart, %d lines left\n", len(lines))
		ok = false
	}

	if !ok {
		os.Exit(1)
	}
}
