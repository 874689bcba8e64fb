package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	defaultAddr          = "http://localhost:8080"
	defaultTimeout       = 10 * time.Second
	idempotencyKeyHeader = "Idempotency-Key"
)

type orderItem struct {
	ModelID   int64  `json:"model_id"`
	PlDx      string `json:"pl_dx,omitempty"`
	LqPc      string `json:"lq_pc,omitempty"`
	Colours   string `json:"colours,omitempty"`
	Qty       int64  `json:"qty"`
	Units     string `json:"units,omitempty"`
	Box       string `json:"box,omitempty"`
	Stc       string `json:"stc,omitempty"`
	Trims     string `json:"trims,omitempty"`
	ModelName string `json:"model_name,omitempty"`
}

type orderRequest struct {
	PartyID      int64       `json:"party_id"`
	ReceivedDate string      `json:"received_date"`
	DeliveryDate string      `json:"delivery_date"`
	Items        []orderItem `json:"items"`
}

// client — минимальный HTTP-клиент к order API.
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(addr string, timeout time.Duration) *client {
	return &client{
		baseURL: strings.TrimRight(addr, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// do выполняет запрос и возвращает тело ответа; не-2xx статус считается ошибкой.
func (c *client) do(method, path string, body any, headers map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequest(method, c.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := strings.TrimSpace(string(payload))
		if message == "" {
			message = resp.Status
		}
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, message)
	}

	return payload, nil
}

func (c *client) createOrder(line string, req orderRequest, idempotencyKey string) ([]byte, error) {
	var headers map[string]string
	if idempotencyKey != "" {
		headers = map[string]string{idempotencyKeyHeader: idempotencyKey}
	}
	return c.do(http.MethodPost, "/v1/orders/"+line, req, headers)
}

func (c *client) getOrder(line string, id int64) ([]byte, error) {
	return c.do(http.MethodGet, fmt.Sprintf("/v1/orders/%s/%d", line, id), nil, nil)
}

func (c *client) getOrderByVoucher(line string, voucherNo int64) ([]byte, error) {
	return c.do(http.MethodGet, fmt.Sprintf("/v1/orders/%s/by-voucher/%d", line, voucherNo), nil, nil)
}

func (c *client) replaceOrder(line string, id int64, req orderRequest) ([]byte, error) {
	return c.do(http.MethodPut, fmt.Sprintf("/v1/orders/%s/%d", line, id), req, nil)
}

func (c *client) deleteOrder(line string, id int64) error {
	_, err := c.do(http.MethodDelete, fmt.Sprintf("/v1/orders/%s/%d", line, id), nil, nil)
	return err
}

func (c *client) timeline(line string, id int64) ([]byte, error) {
	return c.do(http.MethodGet, fmt.Sprintf("/v1/timeline/%s/%d", line, id), nil, nil)
}

// loadItems читает позиции заказа из JSON-файла.
func loadItems(path string) ([]orderItem, error) {
	if path == "" {
		return nil, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read items file: %w", err)
	}

	var items []orderItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("parse items file: %w", err)
	}
	return items, nil
}

// printJSON выводит ответ сервера с отступами.
func printJSON(out io.Writer, payload []byte) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, payload, "", "  "); err != nil {
		_, _ = out.Write(payload)
		_, _ = fmt.Fprintln(out)
		return
	}
	_, _ = pretty.WriteTo(out)
	_, _ = fmt.Fprintln(out)
}

func usage() {
	_, _ = fmt.Fprintf(os.Stderr, `usage: orderctl <command> [flags]

commands:
  create    create an order (reads items from -items JSON file)
  get       fetch an order by id
  voucher   fetch an order by voucher number
  replace   replace an order by id
  delete    delete an order by id
  timeline  list lifecycle events of an order

common flags: -addr (default %s), -line (cover|blade)
`, defaultAddr)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	command := os.Args[1]
	args := os.Args[2:]

	flags := flag.NewFlagSet(command, flag.ExitOnError)
	addr := flags.String("addr", defaultAddr, "order API base URL")
	line := flags.String("line", "", "product line: cover|blade")
	id := flags.Int64("id", 0, "order id")
	voucherNo := flags.Int64("voucher", 0, "voucher number")
	partyID := flags.Int64("party", 0, "party reference id")
	received := flags.String("received", "", "received date (YYYY-MM-DD)")
	delivery := flags.String("delivery", "", "delivery date (YYYY-MM-DD)")
	itemsPath := flags.String("items", "", "path to JSON file with order items")
	idempotencyKey := flags.String("idempotency-key", "", "idempotency key for create")
	timeout := flags.Duration("timeout", defaultTimeout, "request timeout")
	_ = flags.Parse(args)

	if *line == "" {
		fail("-line is required")
	}

	c := newClient(*addr, *timeout)

	switch command {
	case "create", "replace":
		items, err := loadItems(*itemsPath)
		if err != nil {
			fail("%v", err)
		}
		req := orderRequest{
			PartyID:      *partyID,
			ReceivedDate: *received,
			DeliveryDate: *delivery,
			Items:        items,
		}

		var payload []byte
		if command == "create" {
			payload, err = c.createOrder(*line, req, *idempotencyKey)
		} else {
			if *id <= 0 {
				fail("-id is required for replace")
			}
			payload, err = c.replaceOrder(*line, *id, req)
		}
		if err != nil {
			fail("%v", err)
		}
		printJSON(os.Stdout, payload)

	case "get":
		if *id <= 0 {
			fail("-id is required for get")
		}
		payload, err := c.getOrder(*line, *id)
		if err != nil {
			fail("%v", err)
		}
		printJSON(os.Stdout, payload)

	case "voucher":
		if *voucherNo <= 0 {
			fail("-voucher is required")
		}
		payload, err := c.getOrderByVoucher(*line, *voucherNo)
		if err != nil {
			fail("%v", err)
		}
		printJSON(os.Stdout, payload)

	case "delete":
		if *id <= 0 {
			fail("-id is required for delete")
		}
		if err := c.deleteOrder(*line, *id); err != nil {
			fail("%v", err)
		}
		fmt.Printf("order %s/%d deleted\n", *line, *id)

	case "timeline":
		if *id <= 0 {
			fail("-id is required for timeline")
		}
		payload, err := c.timeline(*line, *id)
		if err != nil {
			fail("%v", err)
		}
		printJSON(os.Stdout, payload)

	default:
		usage()
	}
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
