package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status        int
	ReservationID string
	Code          string
	Err           error
}

type selectedProduct struct {
	ProductID   uint   `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	Price       int64  `json:"price"`
}

type reservationReq struct {
	PresetID         uint              `json:"preset_id"`
	UserName         string            `json:"user_name"`
	PhoneNumber      string            `json:"phone_number"`
	SelectedProducts []selectedProduct `json:"selected_products"`
	TotalAmount      int64             `json:"total_amount"`
	PickupDate       string            `json:"pickup_date"`
	LineUserID       string            `json:"line_user_id,omitempty"`
}

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	presetID := flag.Uint("preset", 1, "preset id")
	productID := flag.Uint("product", 1, "product id")
	price := flag.Int64("price", 1000, "unit price")
	pickup := flag.String("pickup", time.Now().AddDate(0, 0, 3).Format("2006-01-02"), "pickup date (YYYY-MM-DD)")
	lineUser := flag.String("line-user", "", "line_user_id sent with every request")

	// 同一份请求并发提交 n 次：每次都应创建新的预约（无幂等键）
	n := flag.Int("n", 100, "total requests")
	concurrency := flag.Int("c", 20, "max concurrency")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}
	req := reservationReq{
		PresetID:    *presetID,
		UserName:    "負荷テスト",
		PhoneNumber: "090-0000-0000",
		SelectedProducts: []selectedProduct{
			{ProductID: *productID, ProductName: "load-test", Quantity: 1, Price: *price},
		},
		TotalAmount: *price,
		PickupDate:  *pickup,
		LineUserID:  *lineUser,
	}

	fmt.Printf("start: preset=%d product=%d requests=%d concurrency=%d\n", *presetID, *productID, *n, *concurrency)
	start := time.Now()
	results := run(client, *baseURL, req, *n, *concurrency)
	printSummary(results, time.Since(start))
}

func run(client *http.Client, baseURL string, req reservationReq, total, concurrency int) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, total)

	for i := 0; i < total; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = reserveOnce(client, baseURL, req)
		}(i)
	}

	wg.Wait()
	return results
}

func reserveOnce(client *http.Client, baseURL string, req reservationReq) Result {
	b, _ := json.Marshal(req)
	httpReq, _ := http.NewRequest(http.MethodPost, baseURL+"/api/reservations", bytes.NewReader(b))
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	var out struct {
		Data struct {
			ReservationID string `json:"reservation_id"`
		} `json:"data"`
		Code string `json:"code"`
	}
	_ = json.Unmarshal(body, &out)
	return Result{Status: resp.StatusCode, ReservationID: out.Data.ReservationID, Code: out.Code}
}

// printSummary 聚合输出状态码分布、错误码分布与不同预约 ID 数。
func printSummary(results []Result, elapsed time.Duration) {
	status := map[int]int{}
	codes := map[string]int{}
	ids := map[string]struct{}{}
	errCount := 0
	for _, r := range results {
		if r.Err != nil {
			errCount++
			continue
		}
		status[r.Status]++
		if r.Code != "" {
			codes[r.Code]++
		}
		if r.ReservationID != "" {
			ids[r.ReservationID] = struct{}{}
		}
	}

	fmt.Printf("done in %s\n", elapsed.Round(time.Millisecond))
	fmt.Println("http status summary:")
	keys := make([]int, 0, len(status))
	for k := range status {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		fmt.Printf("  %d -> %d\n", k, status[k])
	}
	for code, cnt := range codes {
		fmt.Printf("  code %s -> %d\n", code, cnt)
	}
	if errCount > 0 {
		fmt.Printf("  errors -> %d\n", errCount)
	}
	fmt.Printf("created=%d distinct reservation ids=%d\n", status[http.StatusCreated], len(ids))
}
