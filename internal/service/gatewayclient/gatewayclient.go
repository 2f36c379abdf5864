package gatewayclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/iurnickita/paywebhook/internal/model"
)

var ErrOrderNotFound = errors.New("provider order not found")

// JSON ответ провайдера на запрос заказа
type OrderAnswer struct {
	Order struct {
		ID          string `json:"id"`
		ReferenceID string `json:"reference_id"`
		State       string `json:"state"`
	} `json:"order"`
}

type GatewayClient interface {
	LookupOrder(ctx context.Context, providerOrderID string) (model.ProviderOrder, error)
}

type gatewayClient struct {
	client *resty.Client
}

func NewGatewayClient(serviceAddr string, accessToken string, timeout time.Duration) GatewayClient {
	client := resty.New().
		SetBaseURL(serviceAddr).
		SetAuthToken(accessToken).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)
	return gatewayClient{client: client}
}

func (gc gatewayClient) LookupOrder(ctx context.Context, providerOrderID string) (model.ProviderOrder, error) {
	path := "/v2/orders/{order_id}"

	setreq := gc.client.R().
		SetContext(ctx).
		SetPathParam("order_id", providerOrderID)
	setresp, err := setreq.Get(path)
	if err != nil {
		return model.ProviderOrder{}, err
	}

	switch setresp.StatusCode() {
	case http.StatusOK:
		var orderAnswer OrderAnswer
		err = json.Unmarshal(setresp.Body(), &orderAnswer)
		if err != nil {
			return model.ProviderOrder{}, err
		}
		return model.ProviderOrder{
			ID:          orderAnswer.Order.ID,
			ReferenceID: orderAnswer.Order.ReferenceID,
			State:       orderAnswer.Order.State,
		}, nil
	case http.StatusNotFound:
		return model.ProviderOrder{}, fmt.Errorf("%w: %s", ErrOrderNotFound, providerOrderID)
	default:
		return model.ProviderOrder{}, fmt.Errorf("gateway request status: %d", setresp.StatusCode())
	}
}
