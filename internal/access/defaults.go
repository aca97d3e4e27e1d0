package access

// DefaultMatrices returns the least-privilege baseline shipped with the
// console. It seeds a fresh database and stands in for stored matrices when
// the permission store cannot be read. A new value is returned on each call.
func DefaultMatrices() RoleMatrices {
	return RoleMatrices{
		RoleEditor: Matrix{
			ResourceProducts:      {ActionView: true, ActionCreate: true, ActionEdit: true},
			ResourceOrders:        {ActionView: true},
			ResourceQuotes:        {ActionView: true, ActionCreate: true, ActionEdit: true},
			ResourceMedia:         {ActionView: true, ActionCreate: true},
			ResourceNotifications: {ActionView: true},
		},
		RoleAuthor: Matrix{
			ResourceProducts: {ActionView: true},
			ResourceMedia:    {ActionView: true, ActionCreate: true},
		},
	}
}
