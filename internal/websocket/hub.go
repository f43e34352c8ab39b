package websocket

import (
	"encoding/json"
	"sync"

	"finance/internal/models"
	"finance/internal/money"
)

// InvoiceUpdate is pushed to the owner of an invoice whenever its totals or
// status change.
type InvoiceUpdate struct {
	InvoiceID      string `json:"invoice_id"`
	CardID         string `json:"card_id"`
	ReferenceMonth string `json:"reference_month"`
	Status         string `json:"status"`
	TotalValue     string `json:"total_value"`
	PaidValue      string `json:"paid_value"`
	DueDate        string `json:"due_date"`
}

func NewInvoiceUpdate(inv models.Invoice) InvoiceUpdate {
	return InvoiceUpdate{
		InvoiceID:      inv.ID,
		CardID:         inv.CardID,
		ReferenceMonth: inv.ReferenceMonth,
		Status:         string(inv.Status),
		TotalValue:     money.Format(inv.TotalValue),
		PaidValue:      money.Format(inv.PaidValue),
		DueDate:        inv.DueDate.Format("2006-01-02"),
	}
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*Client]struct{})
	}
	h.clients[userID][client] = struct{}{}
}

func (h *Hub) Unregister(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		return
	}
	delete(h.clients[userID], client)
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
}

// BroadcastInvoice never blocks: a client whose buffer is full misses the
// update.
func (h *Hub) BroadcastInvoice(userID string, update InvoiceUpdate) {
	payload, _ := json.Marshal(update)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[userID] {
		select {
		case client.send <- payload:
		default:
		}
	}
}

func (h *Hub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}
