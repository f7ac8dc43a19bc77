package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// PerfResult gathers aggregated metrics for the test run.
// Atomic counters are used to avoid lock‑contention on hot paths.
// LatencySum & P95Latency are in nanoseconds.
//
// P95Latency is maintained via a lightweight reservoir sampler.
type PerfResult struct {
	TotalRequests int64
	SuccessCount  int64
	ConflictCount int64
	ErrorCount    int64
	LatencySum    int64
	P95Latency    int64
}

const (
	baseURL        = "http://localhost:8080"
	fixedWorkers   = 50
	fixedRPSTarget = 700
	fixedDuration  = 30 * time.Second
	defaultTimeout = 30 * time.Second
	fixedSlots     = 5000
	fixedDaily     = 5000
)

type reviewPayload struct {
	ID int64 `json:"id"`
}

type boardPayload struct {
	Slots []struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	} `json:"slots"`
	Summary struct {
		Reserved   int `json:"reserved"`
		Complete   int `json:"complete"`
		DailyCount int `json:"daily_count"`
	} `json:"summary"`
}

func main() {
	transport := &http.Transport{
		MaxIdleConns:        fixedWorkers * 4,
		MaxIdleConnsPerHost: fixedWorkers * 4,
		IdleConnTimeout:     90 * time.Second,
	}
	httpClient := &http.Client{
		Transport: transport,
		Timeout:   defaultTimeout,
	}

	reviewID, err := createReview(httpClient)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create review: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("created review %d with %d slots (daily count %d)\n", reviewID, fixedSlots, fixedDaily)

	slotIDs, err := fetchSlotIDs(httpClient, reviewID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to fetch slot board: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("==========================================")
	fmt.Println("slot reservation load test")
	fmt.Println("==========================================")
	fmt.Printf("review ID : %d\n", reviewID)
	fmt.Printf("RPS       : %d\n", fixedRPSTarget)
	fmt.Printf("duration  : %v\n", fixedDuration)
	fmt.Println("==========================================")

	burst := fixedRPSTarget / fixedWorkers
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(fixedRPSTarget), burst)

	ctx, cancel := context.WithTimeout(context.Background(), fixedDuration)
	defer cancel()

	var result PerfResult
	var wg sync.WaitGroup

	// latencyChan collects latencies for P95 estimation.
	latencyChan := make(chan time.Duration, 4096)
	go trackP95(latencyChan, &result)

	for i := 0; i < fixedWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano()))
			for {
				if err := limiter.Wait(ctx); err != nil { // context cancelled → exit
					return
				}
				slotID := slotIDs[rng.Intn(len(slotIDs))]
				doRequest(httpClient, reviewID, slotID, &result, latencyChan)
			}
		}()
	}

	start := time.Now()
	<-ctx.Done() // wait for duration

	wg.Wait()
	close(latencyChan)

	totalDur := time.Since(start)

	fmt.Println("==========================================")
	fmt.Println("results")
	fmt.Println("==========================================")
	fmt.Printf("elapsed            : %.2fs\n", totalDur.Seconds())
	fmt.Printf("total requests     : %d\n", result.TotalRequests)
	fmt.Printf("successful claims  : %d\n", result.SuccessCount)
	fmt.Printf("conflicts (409)    : %d\n", result.ConflictCount)
	fmt.Printf("failed requests    : %d\n", result.ErrorCount)

	actualRPS := float64(result.TotalRequests) / totalDur.Seconds()

	var avgLatency time.Duration
	if result.SuccessCount > 0 {
		avgLatency = time.Duration(result.LatencySum / result.SuccessCount)
	}

	fmt.Printf("actual RPS         : %.2f\n", actualRPS)
	fmt.Printf("avg latency        : %v\n", avgLatency)
	fmt.Printf("p95 latency        : %v\n", time.Duration(result.P95Latency))
	fmt.Println("==========================================")

	if err := verifyConsistency(httpClient, reviewID, result.SuccessCount); err != nil {
		fmt.Printf("consistency check failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("consistency check passed")
}

// createReview provisions a fresh review campaign for the test run.
func createReview(httpClient *http.Client) (int64, error) {
	today := time.Now().Format("2006-01-02")
	body, _ := json.Marshal(map[string]interface{}{
		"platform":   "loadtest",
		"dailyCount": fixedDaily,
		"startDate":  today,
		"endDate":    today,
		"slotCount":  fixedSlots,
	})

	resp, err := httpClient.Post(baseURL+"/reviews", "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var review reviewPayload
	if err := json.NewDecoder(resp.Body).Decode(&review); err != nil {
		return 0, err
	}
	return review.ID, nil
}

// fetchSlotIDs loads the slot board once; the GET also triggers the
// day's activation pass.
func fetchSlotIDs(httpClient *http.Client, reviewID int64) ([]int64, error) {
	resp, err := httpClient.Get(fmt.Sprintf("%s/slots/%d", baseURL, reviewID))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var board boardPayload
	if err := json.NewDecoder(resp.Body).Decode(&board); err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(board.Slots))
	for _, slot := range board.Slots {
		ids = append(ids, slot.ID)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("review %d has no slots", reviewID)
	}
	return ids, nil
}

// doRequest performs a single reservation attempt and collects metrics.
func doRequest(httpClient *http.Client, reviewID, slotID int64, result *PerfResult, latencyChan chan<- time.Duration) {
	body, _ := json.Marshal(map[string]interface{}{
		"slotId": slotID,
		"userId": uuid.New().String(),
	})

	start := time.Now()
	atomic.AddInt64(&result.TotalRequests, 1)

	resp, err := httpClient.Post(fmt.Sprintf("%s/slots/%d", baseURL, reviewID), "application/json", bytes.NewReader(body))
	latency := time.Since(start)

	if err != nil {
		atomic.AddInt64(&result.ErrorCount, 1)
		return
	}
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		atomic.AddInt64(&result.SuccessCount, 1)
		atomic.AddInt64(&result.LatencySum, latency.Nanoseconds())
		select {
		case latencyChan <- latency:
		default:
		}
	case http.StatusConflict:
		atomic.AddInt64(&result.ConflictCount, 1)
	default:
		atomic.AddInt64(&result.ErrorCount, 1)
	}
}

// trackP95 maintains a best‑effort rolling P95 latency estimation.
func trackP95(latencies <-chan time.Duration, result *PerfResult) {
	const size = 1000
	buf := make([]int64, 0, size)

	for lat := range latencies {
		if len(buf) < size {
			buf = append(buf, lat.Nanoseconds())
		} else {
			// Replace random element (simple reservoir sampling)
			if idx := time.Now().UnixNano() % int64(size); idx < int64(size/10) {
				buf[idx] = lat.Nanoseconds()
			}
		}

		// Update P95 periodically
		if len(buf) >= 100 && len(buf)%100 == 0 {
			copyBuf := make([]int64, len(buf))
			copy(copyBuf, buf)
			quickSort(copyBuf)
			p95Index := int(float64(len(copyBuf)) * 0.95)
			if p95Index >= len(copyBuf) {
				p95Index = len(copyBuf) - 1
			}
			atomic.StoreInt64(&result.P95Latency, copyBuf[p95Index])
		}
	}
}

// quickSort sorts the array in ascending order
func quickSort(arr []int64) {
	if len(arr) < 2 {
		return
	}

	left, right := 0, len(arr)-1
	pivot := len(arr) / 2

	arr[pivot], arr[right] = arr[right], arr[pivot]

	for i := range arr {
		if arr[i] < arr[right] {
			arr[left], arr[i] = arr[i], arr[left]
			left++
		}
	}

	arr[left], arr[right] = arr[right], arr[left]

	quickSort(arr[:left])
	quickSort(arr[left+1:])
}

// verifyConsistency re-reads the board and checks that reserved slots
// match successful claims and never exceed the daily cap.
func verifyConsistency(httpClient *http.Client, reviewID, expectedReserved int64) error {
	resp, err := httpClient.Get(fmt.Sprintf("%s/slots/%d", baseURL, reviewID))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var board boardPayload
	if err := json.NewDecoder(resp.Body).Decode(&board); err != nil {
		return err
	}

	allocated := board.Summary.Reserved + board.Summary.Complete
	if allocated > board.Summary.DailyCount {
		return fmt.Errorf("allocated %d exceeds daily count %d", allocated, board.Summary.DailyCount)
	}
	if int64(allocated) != expectedReserved {
		return fmt.Errorf("allocated %d does not match successful claims %d", allocated, expectedReserved)
	}
	return nil
}
