package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/port"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMelScenario walks the full producer → admin → company flow.
func TestMelScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := producerID("p1")
	c := companyID("c1")
	f.verifiedCompany(t, c, "11222333000181")

	mel := f.createProduct(t, p, "Mel", "10.00")
	cert, err := f.certs.Submit(ctx, p, mel.ID, "pure honey", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.CertPending, cert.State)

	_, err = f.certs.Resolve(ctx, adminID(), cert.ID, &domain.ResolveRequest{Decision: "approve"})
	require.NoError(t, err)

	public, err := f.catalog.ListPublic(ctx)
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.Equal(t, "Mel", public[0].Name)

	cart, err := f.carts.AddItem(ctx, c, &domain.AddItemRequest{ProductID: mel.ID, Quantity: 3})
	require.NoError(t, err)
	assert.Equal(t, "30.00", cart.Total.StringFixed(2))

	order, err := f.carts.Checkout(ctx, c, &domain.CheckoutRequest{
		CartID:        cart.ID,
		Delivery:      delivery(),
		PaymentMethod: "credit_card",
	})
	require.NoError(t, err)
	assert.Equal(t, "30.00", order.Total.StringFixed(2))
	assert.Equal(t, domain.OrderPending, order.State)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 3, order.Items[0].Quantity)

	_, err = f.carts.Checkout(ctx, c, &domain.CheckoutRequest{
		CartID:        cart.ID,
		Delivery:      delivery(),
		PaymentMethod: "credit_card",
	})
	var conflict *domain.ErrConflict
	require.ErrorAs(t, err, &conflict)

	orders, err := f.orders.List(ctx, c, "")
	require.NoError(t, err)
	assert.Len(t, orders, 1, "a second checkout must never create another order")

	snap := f.metrics.GetMarketplaceSnapshot()
	assert.Equal(t, float64(1), snap.CheckoutsCompleted)
	assert.Equal(t, float64(1), snap.CheckoutsConflicted)
}

func TestCartTotal_AlwaysSumOfLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := producerID("p1")
	c := companyID("c1")

	mel := f.createProduct(t, p, "Mel", "10.00")
	acai := f.createProduct(t, p, "Açaí", "7.35")
	f.certify(t, p, mel)
	f.certify(t, p, acai)

	check := func(cv *domain.CartView) {
		t.Helper()
		sum := decimal.Zero
		for _, it := range cv.Items {
			sum = sum.Add(it.UnitPriceSnapshot.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
		assert.True(t, sum.Equal(cv.Total), "total %s != sum %s", cv.Total, sum)
	}

	cv, err := f.carts.AddItem(ctx, c, &domain.AddItemRequest{ProductID: mel.ID})
	require.NoError(t, err)
	check(cv)
	assert.Equal(t, 1, cv.ItemCount)

	cv, err = f.carts.AddItem(ctx, c, &domain.AddItemRequest{ProductID: acai.ID, Quantity: 4})
	require.NoError(t, err)
	check(cv)

	// merging keeps the first snapshot even after a price change
	newPrice := decimal.RequireFromString("12.00")
	_, err = f.catalog.UpdateProduct(ctx, p, mel.ID, &domain.UpdateProductRequest{Price: &newPrice})
	require.NoError(t, err)
	cv, err = f.carts.AddItem(ctx, c, &domain.AddItemRequest{ProductID: mel.ID, Quantity: 2})
	require.NoError(t, err)
	check(cv)
	require.Len(t, cv.Items, 2)
	assert.Equal(t, "59.40", cv.Total.StringFixed(2))

	var acaiLine string
	for _, it := range cv.Items {
		if it.ProductID == acai.ID {
			acaiLine = it.ID
		}
	}
	cv, err = f.carts.UpdateQuantity(ctx, c, acaiLine, 1)
	require.NoError(t, err)
	check(cv)
	assert.Equal(t, "37.35", cv.Total.StringFixed(2))

	cv, err = f.carts.RemoveItem(ctx, c, acaiLine)
	require.NoError(t, err)
	check(cv)
	assert.Equal(t, "30.00", cv.Total.StringFixed(2))
}

func TestAddItem_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := producerID("p1")
	c := companyID("c1")

	uncertified := f.createProduct(t, p, "Cupuaçu", "5.00")
	certified := f.createProduct(t, p, "Mel", "10.00")
	f.certify(t, p, certified)

	var nf *domain.ErrNotFound
	_, err := f.carts.AddItem(ctx, c, &domain.AddItemRequest{ProductID: "missing"})
	assert.ErrorAs(t, err, &nf)

	_, err = f.carts.AddItem(ctx, c, &domain.AddItemRequest{ProductID: uncertified.ID})
	assert.ErrorAs(t, err, &nf)

	var ve *domain.ErrValidation
	_, err = f.carts.AddItem(ctx, c, &domain.AddItemRequest{ProductID: certified.ID, Quantity: -2})
	assert.ErrorAs(t, err, &ve)

	status := "esgotado"
	_, err = f.catalog.UpdateProduct(ctx, p, certified.ID, &domain.UpdateProductRequest{StockStatus: &status})
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, c, &domain.AddItemRequest{ProductID: certified.ID})
	assert.ErrorAs(t, err, &ve)

	var forbidden *domain.ErrForbidden
	_, err = f.carts.AddItem(ctx, p, &domain.AddItemRequest{ProductID: certified.ID})
	assert.ErrorAs(t, err, &forbidden)
}

func TestCartItems_OtherCompanyCannotTouch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := producerID("p1")
	mel := f.createProduct(t, p, "Mel", "10.00")
	f.certify(t, p, mel)

	cv, err := f.carts.AddItem(ctx, companyID("c1"), &domain.AddItemRequest{ProductID: mel.ID})
	require.NoError(t, err)

	_, err = f.carts.RemoveItem(ctx, companyID("c2"), cv.Items[0].ID)
	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestCheckout_RequiresVerifiedCompany(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := producerID("p1")
	c := companyID("c1")
	mel := f.createProduct(t, p, "Mel", "10.00")
	f.certify(t, p, mel)
	_, err := f.carts.AddItem(ctx, c, &domain.AddItemRequest{ProductID: mel.ID})
	require.NoError(t, err)

	req := &domain.CheckoutRequest{Delivery: delivery(), PaymentMethod: "pix"}
	var forbidden *domain.ErrForbidden

	_, err = f.carts.Checkout(ctx, c, req)
	require.ErrorAs(t, err, &forbidden, "no profile")

	require.NoError(t, f.store.CreateCompanyProfile(ctx, &domain.CompanyProfile{
		UserID: c.UserID, TaxID: "11222333000181", LegalName: "C1", VerificationState: domain.VerificationPending,
	}))
	_, err = f.carts.Checkout(ctx, c, req)
	require.ErrorAs(t, err, &forbidden, "pending profile")

	cart, err := f.carts.Get(ctx, c)
	require.NoError(t, err)
	assert.True(t, cart.Active)
	assert.Len(t, cart.Items, 1)
}

func TestCheckout_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := producerID("p1")
	c := companyID("c1")
	f.verifiedCompany(t, c, "11222333000181")

	var ve *domain.ErrValidation
	_, err := f.carts.Checkout(ctx, c, &domain.CheckoutRequest{Delivery: delivery(), PaymentMethod: "pix"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "cart", ve.Field)

	mel := f.createProduct(t, p, "Mel", "10.00")
	f.certify(t, p, mel)
	_, err = f.carts.AddItem(ctx, c, &domain.AddItemRequest{ProductID: mel.ID})
	require.NoError(t, err)

	_, err = f.carts.Checkout(ctx, c, &domain.CheckoutRequest{
		Delivery:      domain.DeliveryInfo{Address: "Rua 1", State: "Amazonas"},
		PaymentMethod: "pix",
	})
	require.ErrorAs(t, err, &ve)
	fields := ve.FieldErrors()
	for _, k := range []string{"city", "state", "zip", "phone"} {
		assert.Contains(t, fields, k)
	}
	assert.NotContains(t, fields, "address")

	_, err = f.carts.Checkout(ctx, c, &domain.CheckoutRequest{Delivery: delivery(), PaymentMethod: "bitcoin"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "paymentMethod", ve.Field)
}

func TestCheckout_StaleVersionConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := producerID("p1")
	c := companyID("c1")
	f.verifiedCompany(t, c, "11222333000181")
	mel := f.createProduct(t, p, "Mel", "10.00")
	f.certify(t, p, mel)

	seen, err := f.carts.AddItem(ctx, c, &domain.AddItemRequest{ProductID: mel.ID})
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, c, &domain.AddItemRequest{ProductID: mel.ID})
	require.NoError(t, err)

	_, err = f.carts.Checkout(ctx, c, &domain.CheckoutRequest{
		CartID:        seen.ID,
		CartVersion:   seen.Version,
		Delivery:      delivery(),
		PaymentMethod: "boleto",
	})
	var conflict *domain.ErrConflict
	require.ErrorAs(t, err, &conflict)

	cart, err := f.carts.Get(ctx, c)
	require.NoError(t, err)
	assert.True(t, cart.Active)
	assert.Equal(t, seen.ID, cart.ID)
}

func TestCheckout_VersionCheckedBeforeCartContents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := producerID("p1")
	c := companyID("c1")
	f.verifiedCompany(t, c, "11222333000181")
	mel := f.createProduct(t, p, "Mel", "10.00")
	f.certify(t, p, mel)

	seen, err := f.carts.AddItem(ctx, c, &domain.AddItemRequest{ProductID: mel.ID})
	require.NoError(t, err)
	require.Len(t, seen.Items, 1)
	_, err = f.carts.RemoveItem(ctx, c, seen.Items[0].ID)
	require.NoError(t, err)

	// the cart the client saw had a line; the emptied cart is a newer version
	_, err = f.carts.Checkout(ctx, c, &domain.CheckoutRequest{
		CartID:        seen.ID,
		CartVersion:   seen.Version,
		Delivery:      delivery(),
		PaymentMethod: "pix",
	})
	var conflict *domain.ErrConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, float64(1), f.metrics.GetMarketplaceSnapshot().CheckoutsConflicted)
}

func TestCheckout_UnpinnedRetryNeverCreatesSecondOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := producerID("p1")
	c := companyID("c1")
	f.verifiedCompany(t, c, "11222333000181")
	mel := f.createProduct(t, p, "Mel", "10.00")
	f.certify(t, p, mel)
	_, err := f.carts.AddItem(ctx, c, &domain.AddItemRequest{ProductID: mel.ID})
	require.NoError(t, err)

	req := &domain.CheckoutRequest{Delivery: delivery(), PaymentMethod: "pix"}
	_, err = f.carts.Checkout(ctx, c, req)
	require.NoError(t, err)

	_, err = f.carts.Checkout(ctx, c, req)
	var ve *domain.ErrValidation
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "cart", ve.Field)

	orders, err := f.orders.List(ctx, c, "")
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestCheckout_ConcurrentSubmitsCreateOneOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := producerID("p1")
	c := companyID("c1")
	f.verifiedCompany(t, c, "11222333000181")
	mel := f.createProduct(t, p, "Mel", "10.00")
	f.certify(t, p, mel)
	cv, err := f.carts.AddItem(ctx, c, &domain.AddItemRequest{ProductID: mel.ID, Quantity: 2})
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.carts.Checkout(ctx, c, &domain.CheckoutRequest{
				CartID:        cv.ID,
				CartVersion:   cv.Version,
				Delivery:      delivery(),
				PaymentMethod: "pix",
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var conflict *domain.ErrConflict
		assert.ErrorAs(t, err, &conflict)
	}
	assert.Equal(t, 1, succeeded)

	orders, err := f.store.ListOrders(ctx, port.OrderQuery{OwnerID: c.UserID})
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}
