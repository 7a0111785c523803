package service_test

import (
	"context"
	"testing"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/port"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProduct_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.catalog.CreateProduct(ctx, producerID("p1"), &domain.CreateProductRequest{
		Name:  "  ",
		Price: decimal.NewFromInt(-1),
	})
	var ve *domain.ErrValidation
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.FieldErrors(), "name")
	assert.Contains(t, ve.FieldErrors(), "price")

	_, err = f.catalog.CreateProduct(ctx, producerID("p1"), &domain.CreateProductRequest{
		Name: "Mel", Price: decimal.NewFromInt(10), StockStatus: "whatever",
	})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "stockStatus", ve.Field)
}

func TestCreateProduct_CompanyForbidden(t *testing.T) {
	f := newFixture(t)

	_, err := f.catalog.CreateProduct(context.Background(), companyID("c1"), &domain.CreateProductRequest{
		Name: "Mel", Price: decimal.NewFromInt(10),
	})
	var forbidden *domain.ErrForbidden
	assert.ErrorAs(t, err, &forbidden)
}

func TestCreateProduct_RoundsPriceAndDefaultsStock(t *testing.T) {
	f := newFixture(t)

	p := f.createProduct(t, producerID("p1"), "Castanha", "12.345")
	assert.Equal(t, "12.35", p.Price.StringFixed(2))
	assert.Equal(t, domain.StockAvailable, p.StockStatus)
	assert.Equal(t, "p1", p.OwnerID)
}

func TestListPublic_OnlyCertifiedAndAvailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := producerID("p1")

	certified := f.createProduct(t, p1, "Mel", "10.00")
	f.certify(t, p1, certified)

	pending := f.createProduct(t, p1, "Açaí", "8.00")
	_, err := f.certs.Submit(ctx, p1, pending.ID, "em análise", nil)
	require.NoError(t, err)

	f.createProduct(t, p1, "Cupuaçu", "5.00")

	soldOut := f.createProduct(t, p1, "Guaraná", "7.00")
	f.certify(t, p1, soldOut)
	status := "soldOut"
	_, err = f.catalog.UpdateProduct(ctx, p1, soldOut.ID, &domain.UpdateProductRequest{StockStatus: &status})
	require.NoError(t, err)

	public, err := f.catalog.ListPublic(ctx)
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.Equal(t, certified.ID, public[0].ID)
	assert.True(t, public[0].HasSeal)

	_, err = f.catalog.GetPublicProduct(ctx, pending.ID)
	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestListPublic_CacheInvalidatedOnResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := producerID("p1")

	p := f.createProduct(t, p1, "Mel", "10.00")
	c, err := f.certs.Submit(ctx, p1, p.ID, "puro", nil)
	require.NoError(t, err)

	public, err := f.catalog.ListPublic(ctx)
	require.NoError(t, err)
	assert.Empty(t, public)

	_, err = f.certs.Resolve(ctx, adminID(), c.ID, &domain.ResolveRequest{Decision: "approve"})
	require.NoError(t, err)

	public, err = f.catalog.ListPublic(ctx)
	require.NoError(t, err)
	assert.Len(t, public, 1)
}

func TestDeleteProduct_CascadesCertificationsAndCartLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := producerID("p1")
	c1 := companyID("c1")

	p := f.createProduct(t, p1, "Mel", "10.00")
	f.certify(t, p1, p)
	_, err := f.certs.Submit(ctx, p1, p.ID, "segunda declaração", nil)
	require.NoError(t, err)

	_, err = f.carts.AddItem(ctx, c1, &domain.AddItemRequest{ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)

	require.NoError(t, f.catalog.DeleteProduct(ctx, p1, p.ID))

	certs, err := f.store.ListCertifications(ctx, port.CertificationQuery{ProductID: p.ID})
	require.NoError(t, err)
	assert.Empty(t, certs, "no certification may outlive its product")

	cart, err := f.carts.Get(ctx, c1)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.True(t, cart.Total.IsZero())

	_, err = f.store.GetProduct(ctx, p.ID)
	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestDeleteProduct_OtherProducerCannotDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := producerID("p1")

	p := f.createProduct(t, p1, "Mel", "10.00")
	f.certify(t, p1, p)

	err := f.catalog.DeleteProduct(ctx, producerID("p2"), p.ID)
	var nf *domain.ErrNotFound
	require.ErrorAs(t, err, &nf)

	_, err = f.store.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	certs, err := f.store.ListCertifications(ctx, port.CertificationQuery{ProductID: p.ID})
	require.NoError(t, err)
	assert.Len(t, certs, 1)
}

func TestDeleteProduct_AdminMayDelete(t *testing.T) {
	f := newFixture(t)
	p := f.createProduct(t, producerID("p1"), "Mel", "10.00")

	require.NoError(t, f.catalog.DeleteProduct(context.Background(), adminID(), p.ID))
}

func TestDeleteProduct_KeepsOrderSnapshots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := producerID("p1")
	c1 := companyID("c1")
	f.verifiedCompany(t, c1, "11222333000181")

	p := f.createProduct(t, p1, "Mel", "10.00")
	f.certify(t, p1, p)
	_, err := f.carts.AddItem(ctx, c1, &domain.AddItemRequest{ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)
	order, err := f.carts.Checkout(ctx, c1, &domain.CheckoutRequest{Delivery: delivery(), PaymentMethod: "pix"})
	require.NoError(t, err)

	require.NoError(t, f.catalog.DeleteProduct(ctx, p1, p.ID))

	got, err := f.orders.Get(ctx, c1, order.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Mel", got.Items[0].ProductName)
	assert.Equal(t, p.ID, got.Items[0].ProductID)
}

func TestUpdateProduct_OwnershipAndPatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createProduct(t, producerID("p1"), "Mel", "10.00")

	name := "Mel de Jandaíra"
	_, err := f.catalog.UpdateProduct(ctx, producerID("p2"), p.ID, &domain.UpdateProductRequest{Name: &name})
	var nf *domain.ErrNotFound
	require.ErrorAs(t, err, &nf)

	price := decimal.RequireFromString("15.5")
	updated, err := f.catalog.UpdateProduct(ctx, producerID("p1"), p.ID, &domain.UpdateProductRequest{Name: &name, Price: &price})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, "15.50", updated.Price.StringFixed(2))
}

func TestListMine_ScopedToOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createProduct(t, producerID("p1"), "Mel", "10.00")
	f.createProduct(t, producerID("p1"), "Açaí", "8.00")
	f.createProduct(t, producerID("p2"), "Cacau", "20.00")

	mine, err := f.catalog.ListMine(ctx, producerID("p1"))
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	all, err := f.catalog.ListMine(ctx, adminID())
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestProducerDashboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := producerID("p1")

	a := f.createProduct(t, p1, "Mel", "10.00")
	b := f.createProduct(t, p1, "Açaí", "8.00")
	f.certify(t, p1, a)
	_, err := f.certs.Submit(ctx, p1, b.ID, "aguardando", nil)
	require.NoError(t, err)
	f.createProduct(t, producerID("p2"), "Cacau", "20.00")

	dash, err := f.catalog.ProducerDashboard(ctx, p1)
	require.NoError(t, err)
	assert.Equal(t, 2, dash.TotalProducts)
	assert.Equal(t, 1, dash.PendingCertifications)
	assert.Equal(t, 1, dash.ApprovedCertifications)
}

func TestSetProductImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := producerID("p1")
	mel := f.createProduct(t, p, "Mel", "10.00")
	f.certify(t, p, mel)

	_, err := f.catalog.SetProductImage(ctx, p, mel.ID, upload("image", "rotulo.pdf", 10))
	var ve *domain.ErrValidation
	require.ErrorAs(t, err, &ve, "documents are not images")
	assert.Zero(t, f.files.count())

	got, err := f.catalog.SetProductImage(ctx, p, mel.ID, upload("image", "mel.jpg", 10))
	require.NoError(t, err)
	require.NotNil(t, got.Image)
	first := got.Image.Path

	public, err := f.catalog.ListPublic(ctx)
	require.NoError(t, err)
	require.Len(t, public, 1)
	require.NotNil(t, public[0].Image, "storefront shows the new image")

	got, err = f.catalog.SetProductImage(ctx, p, mel.ID, upload("image", "mel.png", 10))
	require.NoError(t, err)
	assert.NotEqual(t, first, got.Image.Path)
	assert.Equal(t, 1, f.files.count(), "the replaced image is discarded")

	// renaming keeps the image
	name := "Mel de Uruçu"
	_, err = f.catalog.UpdateProduct(ctx, p, mel.ID, &domain.UpdateProductRequest{Name: &name})
	require.NoError(t, err)
	stored, err := f.catalog.GetProduct(ctx, p, mel.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Image)

	require.NoError(t, f.catalog.DeleteProduct(ctx, p, mel.ID))
	assert.Zero(t, f.files.count(), "deleting the product removes its image")
}

func TestSetProductImage_OtherProducerSeesNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mel := f.createProduct(t, producerID("p1"), "Mel", "10.00")

	_, err := f.catalog.SetProductImage(ctx, producerID("p2"), mel.ID, upload("image", "mel.jpg", 10))
	var nf *domain.ErrNotFound
	require.ErrorAs(t, err, &nf)

	_, err = f.catalog.SetProductImage(ctx, companyID("c1"), mel.ID, upload("image", "mel.jpg", 10))
	var forbidden *domain.ErrForbidden
	require.ErrorAs(t, err, &forbidden)
	assert.Zero(t, f.files.count())
}
