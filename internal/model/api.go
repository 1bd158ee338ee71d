package model

// PutItemRequest represents a request to store an item.
type PutItemRequest struct {
	// Namespace is the namespace to store the item under.
	Namespace []string `json:"namespace"`

	// Key is the key of the item.
	Key string `json:"key"`

	// Value is the payload to store.
	Value map[string]any `json:"value"`

	// TTLSeconds sets an expiry relative to now. Zero uses the configured default.
	TTLSeconds int64 `json:"ttl_seconds,omitempty"`
}

// ItemResponse represents the response from item operations.
type ItemResponse struct {
	// Status indicates the overall status of the operation.
	// For successful operations this is:
	//   - "stored"    after a put
	//   - "found"     when a get returned an item
	//   - "not-found" when a get found nothing
	//   - "deleted"   after a delete
	// For error responses this is "error".
	Status string `json:"status"`

	// Message provides additional context about the operation result.
	Message string `json:"message,omitempty"`

	// RequestID correlates an error response with the service logs.
	RequestID string `json:"request_id,omitempty"`

	// Item contains the item when applicable.
	Item *Item `json:"item,omitempty"`
}

// SearchResponse represents the response from a search.
type SearchResponse struct {
	Items []SearchItem `json:"items"`
}

// NamespacesResponse represents the response from a namespace listing.
type NamespacesResponse struct {
	Namespaces []Namespace `json:"namespaces"`
}
