package manychat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient("test-key", WithBaseURL(srv.URL), WithDispatch(10, time.Millisecond))
	assert.NoError(t, err)
	t.Cleanup(c.Close)

	return c, srv
}

func TestNewClientSinAPIKey(t *testing.T) {
	_, err := NewClient("")
	assert.Error(t, err)
}

func TestGetSubscriberByIDDesconocido(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "/fb/subscriber/getInfo", r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("subscriber_id"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "error",
			"message": "Subscriber not found",
		})
	})

	sub, err := c.GetSubscriberByID(context.Background(), 42)

	assert.NoError(t, err)
	assert.Nil(t, sub)
}

func TestGetSubscriberByPhone(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "success",
			"data": map[string]interface{}{
				"id":         123,
				"phone":      "+5493704111222",
				"first_name": "Juan",
				"last_name":  "Pérez",
				"custom_fields": []map[string]interface{}{
					{"id": 1, "name": "zona", "type": "text", "value": "Formosa Capital"},
					{"id": 2, "name": "vacio", "type": "text", "value": nil},
				},
				"tags": []map[string]interface{}{
					{"id": 9, "name": "interesado"},
				},
			},
		})
	})

	sub, err := c.GetSubscriberByPhone(context.Background(), "+5493704111222")

	assert.NoError(t, err)
	assert.Equal(t, int64(123), sub.ID)
	assert.Equal(t, "Juan Pérez", sub.FullName())
	assert.Equal(t, "Formosa Capital", sub.CustomFields["zona"])
	// los custom fields sin valor no se materializan
	_, ok := sub.CustomFields["vacio"]
	assert.False(t, ok)
	assert.Equal(t, []string{"interesado"}, sub.Tags)
}

// TestCreateOrUpdateSubscriberCrea - teléfono desconocido termina en alta
func TestCreateOrUpdateSubscriberCrea(t *testing.T) {
	var paths []string
	var mu sync.Mutex

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()

		switch r.URL.Path {
		case "/fb/subscriber/findBySystemField":
			json.NewEncoder(w).Encode(map[string]interface{}{"status": "error", "message": "not found"})
		case "/fb/subscriber/createSubscriber":
			var body createSubscriberRequest
			json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "+5493704555666", body.Phone)
			assert.Equal(t, "Carla", body.FirstName)

			json.NewEncoder(w).Encode(map[string]interface{}{
				"status": "success",
				"data":   map[string]interface{}{"id": 900, "phone": body.Phone, "first_name": body.FirstName},
			})
		case "/fb/subscriber/addTagByName":
			json.NewEncoder(w).Encode(map[string]interface{}{"status": "success"})
		default:
			t.Errorf("path inesperado: %s", r.URL.Path)
		}
	})

	sub, err := c.CreateOrUpdateSubscriber(context.Background(), UpsertInput{
		Phone:     "+5493704555666",
		FirstName: "Carla",
		Tags:      []string{"nuevo"},
	})

	assert.NoError(t, err)
	assert.Equal(t, int64(900), sub.ID)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"/fb/subscriber/findBySystemField",
		"/fb/subscriber/createSubscriber",
		"/fb/subscriber/addTagByName",
	}, paths)
}

func TestCreateOrUpdateSubscriberActualiza(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fb/subscriber/findBySystemField":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status": "success",
				"data":   map[string]interface{}{"id": 321, "phone": "+5493704777888"},
			})
		case "/fb/subscriber/updateSubscriber":
			var body updateSubscriberRequest
			json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, int64(321), body.SubscriberID)

			json.NewEncoder(w).Encode(map[string]interface{}{
				"status": "success",
				"data":   map[string]interface{}{"id": 321, "phone": "+5493704777888", "first_name": body.FirstName},
			})
		default:
			t.Errorf("path inesperado: %s", r.URL.Path)
		}
	})

	sub, err := c.CreateOrUpdateSubscriber(context.Background(), UpsertInput{
		Phone:     "+5493704777888",
		FirstName: "Luis",
	})

	assert.NoError(t, err)
	assert.Equal(t, int64(321), sub.ID)
}

func TestBoolCallDeclinado(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "error", "message": "Tag not found"})
	})

	ok, err := c.AddTagToSubscriber(context.Background(), 1, "no-existe")

	// la plataforma declinó: no es un error de transporte
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestErrorDeCredenciales(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})

	_, err := c.GetSubscriberByID(context.Background(), 1)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "credenciales")
}

func TestErrorDeServidor(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := c.GetSubscriberByID(context.Background(), 1)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

// TestDespachoSerializado - las llamadas concurrentes salen de a una
func TestDespachoSerializado(t *testing.T) {
	var inFlight, maxInFlight int64

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt64(&inFlight, 1)
		for {
			prev := atomic.LoadInt64(&maxInFlight)
			if cur <= prev || atomic.CompareAndSwapInt64(&maxInFlight, prev, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)

		json.NewEncoder(w).Encode(map[string]interface{}{"status": "success"})
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.SendTextMessage(context.Background(), 1, "hola")
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&maxInFlight))
}

func TestSubmitConColaLlena(t *testing.T) {
	q := newDispatchQueue(1, time.Hour)
	defer q.close()

	block := make(chan struct{})
	// el primero ocupa el loop de drenado
	q.submit(func() { <-block })
	time.Sleep(10 * time.Millisecond)
	// el segundo llena el buffer
	assert.NoError(t, q.submit(func() {}))

	err := q.submit(func() {})
	assert.ErrorIs(t, err, ErrQueueFull)

	close(block)
}

func TestDoRespetaContextoCancelado(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "success"})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := c.SendTextMessage(ctx, 1, "hola")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
