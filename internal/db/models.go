package db

import "github.com/gitshopapp/storefront/internal/models"

type Order = models.Order
type OrderStatus = models.OrderStatus
type LineItem = models.LineItem
